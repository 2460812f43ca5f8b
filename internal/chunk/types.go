// Package chunk turns source files into indexable units: code symbols found
// with tree-sitter, and headings and fenced code blocks found in markdown.
package chunk

import (
	"context"
	"slices"
)

// SymbolType is the kind of a code symbol.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeMethod    SymbolType = "method"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeVariable  SymbolType = "variable"
)

// Symbol is a named declaration in source code. Lines are 1-indexed and
// inclusive.
type Symbol struct {
	Name      string
	Type      SymbolType
	Scope     string // enclosing class, receiver or function, "." separated
	LineStart int
	LineEnd   int
	Docstring string
	Signature string
}

// ExtractionResult is the output of a SymbolExtractor. HasError is set when
// the parser had to recover from syntax errors; Symbols may still be usable.
type ExtractionResult struct {
	Symbols  []Symbol
	HasError bool
}

// SymbolExtractor finds symbols in source code of a given language.
type SymbolExtractor interface {
	ExtractSymbols(ctx context.Context, source []byte, language string) (*ExtractionResult, error)
}

// Heading is a markdown ATX heading. Body holds the section text up to the
// next heading, and EndLine is the last line of that section.
type Heading struct {
	Text    string
	Level   int
	Line    int
	EndLine int
	Path    string // ancestor headings joined with " > "
	Body    string
}

// CodeBlock is a fenced code block. StartLine and EndLine are the fence lines.
type CodeBlock struct {
	Language  string
	Code      string
	StartLine int
	EndLine   int
}

// MarkdownDocument is the parsed structure of a markdown file.
type MarkdownDocument struct {
	Headings   []Heading
	CodeBlocks []CodeBlock
}

// MarkdownParser extracts headings and code blocks from markdown.
type MarkdownParser interface {
	Parse(source []byte) *MarkdownDocument
}

// Tree is a parsed syntax tree.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a syntax tree node copied out of tree-sitter.
type Node struct {
	Type       string
	Field      string // field name under the parent, "" when unnamed
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in source. Row is 0-indexed.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig maps grammar node types of one language to symbol types.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	InterfaceTypes []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string

	// ScopeTypes enclose members without being symbols (Rust impl blocks).
	// NamespaceTypes enclose declarations that stay top-level in kind.
	ScopeTypes     []string
	NamespaceTypes []string

	// MembersAreMethods reports functions declared in a class or scope
	// body as methods.
	MembersAreMethods bool

	// CommentPrefixes mark leading doc comment lines; a "/*" entry also
	// enables block comments. Lines starting with one of DocSkipPrefixes
	// (attributes, template headers) may sit between the comment and the
	// declaration.
	CommentPrefixes []string
	DocSkipPrefixes []string
}

func (c *LanguageConfig) isScope(nodeType string) bool {
	return slices.Contains(c.ScopeTypes, nodeType)
}

func (c *LanguageConfig) isNamespace(nodeType string) bool {
	return slices.Contains(c.NamespaceTypes, nodeType)
}

// symbolType returns the symbol type a node type declares, if any.
func (c *LanguageConfig) symbolType(nodeType string) (SymbolType, bool) {
	groups := []struct {
		types []string
		kind  SymbolType
	}{
		{c.FunctionTypes, SymbolTypeFunction},
		{c.MethodTypes, SymbolTypeMethod},
		{c.ClassTypes, SymbolTypeClass},
		{c.InterfaceTypes, SymbolTypeInterface},
		{c.TypeDefTypes, SymbolTypeType},
		{c.ConstantTypes, SymbolTypeConstant},
		{c.VariableTypes, SymbolTypeVariable},
	}
	for _, g := range groups {
		for _, t := range g.types {
			if t == nodeType {
				return g.kind, true
			}
		}
	}
	return "", false
}
