package index

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/hybridindex/internal/chunk"
)

// Snippet bounds for document text.
const (
	MaxSnippetLines = 40
	MaxSnippetBytes = 2000
)

// fileSource is a file being turned into documents.
type fileSource struct {
	projectID string
	path      string
	language  string
	lines     []string
}

func newFileSource(projectID, path, language string, content []byte) *fileSource {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return &fileSource{
		projectID: projectID,
		path:      path,
		language:  language,
		lines:     strings.Split(text, "\n"),
	}
}

// documentID is the stable id of the unit starting at lineStart.
func documentID(filePath string, lineStart int) string {
	return fmt.Sprintf("%s:%d", filePath, lineStart)
}

// fileType is the extension without its dot.
func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (f *fileSource) metadata(kind DocumentKind, typ, name, scope string, lineStart, lineEnd int) map[string]any {
	return map[string]any{
		MetaProjectID: f.projectID,
		MetaFilePath:  f.path,
		MetaLanguage:  f.language,
		MetaType:      typ,
		MetaName:      name,
		MetaLineStart: lineStart,
		MetaLineEnd:   lineEnd,
		MetaScope:     scope,
		MetaFileType:  fileType(f.path),
		MetaKind:      string(kind),
	}
}

// snippet returns lines [start, end] (1-indexed) within the snippet bounds.
func (f *fileSource) snippet(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(f.lines) {
		end = len(f.lines)
	}
	if end < start {
		return ""
	}
	if end-start+1 > MaxSnippetLines {
		end = start + MaxSnippetLines - 1
	}
	return boundBytes(strings.Join(f.lines[start-1:end], "\n"))
}

// boundBytes truncates s to MaxSnippetBytes without splitting a UTF-8 rune.
func boundBytes(s string) string {
	if len(s) <= MaxSnippetBytes {
		return s
	}
	cut := MaxSnippetBytes
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func joinText(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

// symbolDocument encodes a code symbol as name, docstring and snippet.
func (f *fileSource) symbolDocument(sym chunk.Symbol) Document {
	return Document{
		ID:   documentID(f.path, sym.LineStart),
		Kind: KindCodeSymbol,
		Text: joinText(sym.Name, sym.Docstring, f.snippet(sym.LineStart, sym.LineEnd)),
		Metadata: f.metadata(KindCodeSymbol, string(sym.Type), sym.Name, sym.Scope,
			sym.LineStart, sym.LineEnd),
	}
}

// headingDocument encodes a markdown section as its heading path and body.
// The scope is the path of the parent heading.
func (f *fileSource) headingDocument(h chunk.Heading) Document {
	end := h.EndLine
	if end < h.Line {
		end = h.Line
	}
	body := h.Body
	if body == "" {
		body = f.snippet(h.Line+1, end)
	}
	return Document{
		ID:       documentID(f.path, h.Line),
		Kind:     KindMarkdownHeading,
		Text:     joinText(headingPath(h), boundBytes(limitLines(body))),
		Metadata: f.metadata(KindMarkdownHeading, "heading", h.Text, parentPath(h), h.Line, end),
	}
}

func headingPath(h chunk.Heading) string {
	if h.Path == "" {
		return h.Text
	}
	return h.Path
}

func parentPath(h chunk.Heading) string {
	if i := strings.LastIndex(h.Path, " > "); i >= 0 {
		return h.Path[:i]
	}
	return ""
}

// codeBlockDocument encodes a fenced block as its language and code. The
// scope is the heading path of the enclosing section.
func (f *fileSource) codeBlockDocument(b chunk.CodeBlock, scope string) Document {
	name := b.Language
	if name == "" {
		name = "code_block"
	}
	return Document{
		ID:       documentID(f.path, b.StartLine),
		Kind:     KindMarkdownCodeBlock,
		Text:     joinText(b.Language, boundBytes(limitLines(b.Code)), scope),
		Metadata: f.metadata(KindMarkdownCodeBlock, "code_block", name, scope, b.StartLine, b.EndLine),
	}
}

func limitLines(s string) string {
	lines := strings.SplitN(s, "\n", MaxSnippetLines+1)
	if len(lines) > MaxSnippetLines {
		lines = lines[:MaxSnippetLines]
	}
	return strings.Join(lines, "\n")
}

// markdownDocuments encodes every heading and code block of doc.
func (f *fileSource) markdownDocuments(doc *chunk.MarkdownDocument) []Document {
	docs := make([]Document, 0, len(doc.Headings)+len(doc.CodeBlocks))
	for _, h := range doc.Headings {
		docs = append(docs, f.headingDocument(h))
	}
	for _, b := range doc.CodeBlocks {
		docs = append(docs, f.codeBlockDocument(b, enclosingSection(doc.Headings, b.StartLine)))
	}
	return docs
}

// enclosingSection returns the heading path of the last heading at or before line.
func enclosingSection(headings []chunk.Heading, line int) string {
	scope := ""
	for _, h := range headings {
		if h.Line > line {
			break
		}
		scope = headingPath(h)
	}
	return scope
}

// dedupe keeps the first document for each id. Units starting on the same
// line (a symbol and a nested declaration, for example) share an id.
func dedupe(docs []Document) []Document {
	seen := make(map[string]struct{}, len(docs))
	out := docs[:0]
	for _, d := range docs {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}
