package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser wraps a tree-sitter parser. It is not safe for concurrent use.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a parser over registry (nil uses the default).
func NewParser(registry *LanguageRegistry) *Parser {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Parser{parser: sitter.NewParser(), registry: registry}
}

// Parse parses source as language.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	lang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	p.parser.SetLanguage(lang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}
	defer tsTree.Close()

	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(ts *sitter.Node) *Node {
	if ts == nil {
		return nil
	}
	n := &Node{
		Type:       ts.Type(),
		StartByte:  ts.StartByte(),
		EndByte:    ts.EndByte(),
		StartPoint: Point{Row: ts.StartPoint().Row, Column: ts.StartPoint().Column},
		EndPoint:   Point{Row: ts.EndPoint().Row, Column: ts.EndPoint().Column},
		HasError:   ts.HasError(),
		Children:   make([]*Node, 0, int(ts.ChildCount())),
	}
	for i := 0; i < int(ts.ChildCount()); i++ {
		if child := ts.Child(i); child != nil {
			c := convertNode(child)
			c.Field = ts.FieldNameForChild(i)
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Content returns the source text covered by n.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Child returns the first direct child of one of the given types.
func (n *Node) Child(types ...string) *Node {
	for _, c := range n.Children {
		for _, t := range types {
			if c.Type == t {
				return c
			}
		}
	}
	return nil
}

// FieldChild returns the first direct child under the grammar field name.
func (n *Node) FieldChild(name string) *Node {
	for _, c := range n.Children {
		if c.Field == name {
			return c
		}
	}
	return nil
}

// Find returns the first descendant (depth-first, n included) of type t.
func (n *Node) Find(t string) *Node {
	if n.Type == t {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(t); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits n and its descendants depth-first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
