package chunk

import (
	"context"
	"slices"
	"strings"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// TreeSitterExtractor is a SymbolExtractor backed by tree-sitter grammars.
// Each call uses its own parser, so one extractor can serve many workers.
type TreeSitterExtractor struct {
	registry *LanguageRegistry
}

var _ SymbolExtractor = (*TreeSitterExtractor)(nil)

// NewTreeSitterExtractor creates an extractor over registry (nil uses the default).
func NewTreeSitterExtractor(registry *LanguageRegistry) *TreeSitterExtractor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &TreeSitterExtractor{registry: registry}
}

// ExtractSymbols parses source and returns its declarations in source order.
func (e *TreeSitterExtractor) ExtractSymbols(ctx context.Context, source []byte, language string) (*ExtractionResult, error) {
	cfg, ok := e.registry.GetByName(language)
	if !ok {
		return nil, herrors.New(herrors.ErrCodeExtractFailed, "no grammar for language "+language, nil).
			WithDetail("language", language)
	}

	parser := NewParser(e.registry)
	defer parser.Close()

	tree, err := parser.Parse(ctx, source, language)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeExtractFailed, "parse failed", err).
			WithDetail("language", language)
	}

	w := &symbolWalker{
		cfg:    cfg,
		source: source,
		lines:  strings.Split(string(source), "\n"),
	}
	w.walk(tree.Root, nil, nil)

	return &ExtractionResult{
		Symbols:  w.symbols,
		HasError: tree.Root.HasError,
	}, nil
}

type symbolWalker struct {
	cfg     *LanguageConfig
	source  []byte
	lines   []string
	symbols []Symbol
}

// functionLike node types open a body whose locals are not symbols.
var functionLike = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"method_declaration":             true,
	"method_definition":              true,
	"function_definition":            true,
	"func_literal":                   true,
	"arrow_function":                 true,
	"function_expression":            true,
	"function":                       true,
	"function_item":                  true,
	"closure_expression":             true,
	"lambda_expression":              true,
	"constructor_declaration":        true,
}

// frame is one enclosing declaration. fn frames open a function body; ns
// frames are namespaces and modules, whose functions stay functions.
type frame struct {
	name string
	fn   bool
	ns   bool
}

func (w *symbolWalker) walk(n, parent *Node, scope []frame) {
	inFunction := false
	for _, f := range scope {
		if f.fn {
			inFunction = true
		}
	}

	childScope := scope
	if sym, ok := w.symbolAt(n, parent, scope, inFunction); ok {
		w.symbols = append(w.symbols, sym)
		switch sym.Type {
		case SymbolTypeClass, SymbolTypeInterface:
			childScope = push(scope, frame{name: sym.Name})
		case SymbolTypeFunction, SymbolTypeMethod:
			childScope = push(scope, frame{name: sym.Name, fn: true})
		}
	} else {
		switch {
		case functionLike[n.Type]:
			childScope = push(scope, frame{fn: true})
		case w.cfg.isScope(n.Type):
			childScope = push(scope, frame{name: w.scopeTypeName(n)})
		case w.cfg.isNamespace(n.Type):
			childScope = push(scope, frame{name: w.declName(n), ns: true})
		}
	}

	for _, c := range n.Children {
		w.walk(c, n, childScope)
	}
}

func push(scope []frame, f frame) []frame {
	out := make([]frame, len(scope), len(scope)+1)
	copy(out, scope)
	return append(out, f)
}

func (w *symbolWalker) symbolAt(n, parent *Node, scope []frame, inFunction bool) (Symbol, bool) {
	kind, ok := w.cfg.symbolType(n.Type)
	if !ok {
		return Symbol{}, false
	}
	// struct Foo *p; names a type without declaring it.
	if strings.HasSuffix(n.Type, "_specifier") && n.FieldChild("body") == nil {
		return Symbol{}, false
	}

	var name string
	switch kind {
	case SymbolTypeConstant, SymbolTypeVariable:
		if inFunction {
			return Symbol{}, false
		}
		name, kind = w.bindingName(n, parent, kind)
	case SymbolTypeType:
		if inFunction {
			return Symbol{}, false
		}
		name = w.declName(n)
		if n.Type == "type_spec" && n.Child("interface_type") != nil {
			kind = SymbolTypeInterface
		}
	default:
		name = w.declName(n)
	}
	if name == "" {
		return Symbol{}, false
	}

	scopeText := scopeName(scope)
	// void Cart::add() is a method of Cart defined outside the class.
	if owner, member, ok := cutLast(name, "::"); ok {
		name = member
		scopeText = joinScope(scopeText, strings.ReplaceAll(owner, "::", "."))
		if kind == SymbolTypeFunction {
			kind = SymbolTypeMethod
		}
	}
	if kind == SymbolTypeFunction && w.cfg.MembersAreMethods && inClass(scope) {
		kind = SymbolTypeMethod
	}

	sym := Symbol{
		Name:      name,
		Type:      kind,
		Scope:     scopeText,
		LineStart: int(n.StartPoint.Row) + 1,
		LineEnd:   int(n.EndPoint.Row) + 1,
		Signature: signature(n.Content(w.source)),
	}
	if n.Type == "method_declaration" && w.cfg.Name == "go" {
		sym.Scope = w.receiverType(n)
	}
	sym.Docstring = w.docstring(n)
	return sym, true
}

// nameTypes are the node types that can name a declaration, most
// specific first.
var nameTypes = []string{
	"identifier", "type_identifier", "field_identifier", "property_identifier",
	"private_property_identifier", "namespace_identifier",
}

// declName finds the identifier naming a declaration: its name field, the
// end of its declarator chain (C and C++), or the first identifier child.
func (w *symbolWalker) declName(n *Node) string {
	if c := n.FieldChild("name"); c != nil {
		return c.Content(w.source)
	}
	if d := n.FieldChild("declarator"); d != nil {
		name, _ := w.declaratorName(d)
		return name
	}
	for _, t := range nameTypes {
		if c := n.Child(t); c != nil {
			return c.Content(w.source)
		}
	}
	return ""
}

// declaratorName follows a C declarator chain to the declared name and
// reports whether a function declarator was on the way.
func (w *symbolWalker) declaratorName(d *Node) (string, bool) {
	fn := false
	for {
		if d.Type == "function_declarator" {
			fn = true
		}
		next := d.FieldChild("declarator")
		if next == nil {
			break
		}
		d = next
	}
	if d.Type != "qualified_identifier" {
		if name := d.FieldChild("name"); name != nil {
			d = name
		}
	}
	return d.Content(w.source), fn
}

// scopeTypeName names the type a scope block belongs to, e.g. User in
// impl Display for User.
func (w *symbolWalker) scopeTypeName(n *Node) string {
	t := n.FieldChild("type")
	if t == nil {
		return w.declName(n)
	}
	if id := t.Find("type_identifier"); id != nil {
		return id.Content(w.source)
	}
	return t.Content(w.source)
}

// bindingName names const/let/var declarations and assignments. JS and TS
// declarations whose value is a function are reported as functions.
func (w *symbolWalker) bindingName(n, parent *Node, kind SymbolType) (string, SymbolType) {
	switch n.Type {
	case "const_spec", "var_spec", "const_item", "static_item":
		return w.declName(n), kind
	case "declaration":
		// C and C++ globals; prototypes are skipped.
		d := n.FieldChild("declarator")
		if d == nil {
			return "", kind
		}
		name, fn := w.declaratorName(d)
		if fn {
			return "", kind
		}
		for _, c := range n.Children {
			if c.Type == "type_qualifier" && strings.HasPrefix(c.Content(w.source), "const") {
				return name, SymbolTypeConstant
			}
		}
		return name, SymbolTypeVariable
	case "field_declaration":
		// Java: only static final fields are reported, as constants.
		mods := n.Child("modifiers")
		if mods == nil {
			return "", kind
		}
		words := strings.Fields(mods.Content(w.source))
		if !slices.Contains(words, "static") || !slices.Contains(words, "final") {
			return "", kind
		}
		if d := n.FieldChild("declarator"); d != nil {
			name, _ := w.declaratorName(d)
			return name, SymbolTypeConstant
		}
		return "", kind
	case "assignment":
		// Module-level only: module > expression_statement > assignment.
		if parent == nil || parent.Type != "expression_statement" {
			return "", kind
		}
		left := n.Child("identifier")
		if left == nil || left != n.Children[0] {
			return "", kind
		}
		name := left.Content(w.source)
		if strings.ToUpper(name) == name {
			return name, SymbolTypeConstant
		}
		return name, SymbolTypeVariable
	case "lexical_declaration", "variable_declaration":
		decl := n.Child("variable_declarator")
		if decl == nil {
			return "", kind
		}
		id := decl.Child("identifier")
		if id == nil {
			return "", kind
		}
		if decl.Child("arrow_function", "function_expression", "function") != nil {
			return id.Content(w.source), SymbolTypeFunction
		}
		if n.Type == "lexical_declaration" && !strings.HasPrefix(strings.TrimSpace(n.Content(w.source)), "const") {
			kind = SymbolTypeVariable
		}
		return id.Content(w.source), kind
	}
	return "", kind
}

// receiverType returns the type name of a Go method receiver.
func (w *symbolWalker) receiverType(n *Node) string {
	recv := n.Child("parameter_list")
	if recv == nil {
		return ""
	}
	if t := recv.Find("type_identifier"); t != nil {
		return t.Content(w.source)
	}
	return ""
}

// docstring returns the Python docstring of n, or the comment block directly
// above it for languages with comment prefixes.
func (w *symbolWalker) docstring(n *Node) string {
	if w.cfg.Name == "python" {
		return w.pythonDocstring(n)
	}
	if len(w.cfg.CommentPrefixes) == 0 {
		return ""
	}
	blocks := slices.Contains(w.cfg.CommentPrefixes, "/*")

	row := min(int(n.StartPoint.Row), len(w.lines)) - 1
	for row >= 0 && hasAnyPrefix(strings.TrimSpace(w.lines[row]), w.cfg.DocSkipPrefixes) {
		row--
	}

	// Collected bottom-up, one entry per comment line.
	var doc []string
	for row >= 0 {
		line := strings.TrimSpace(w.lines[row])
		if blocks && strings.HasSuffix(line, "*/") && !strings.HasPrefix(line, "//") {
			text, start := w.blockComment(row)
			if start < 0 {
				break
			}
			for i := len(text) - 1; i >= 0; i-- {
				doc = append(doc, text[i])
			}
			row = start - 1
			continue
		}
		text, ok := stripComment(line, w.cfg.CommentPrefixes)
		if !ok {
			break
		}
		if text != "" {
			doc = append(doc, text)
		}
		row--
	}
	slices.Reverse(doc)
	return strings.Join(doc, "\n")
}

// blockComment reads the /* */ comment ending on row. It returns the
// non-empty lines without markers and the row the comment opens on, or -1
// when no opening is found.
func (w *symbolWalker) blockComment(end int) ([]string, int) {
	for start := end; start >= 0; start-- {
		if !strings.HasPrefix(strings.TrimSpace(w.lines[start]), "/*") {
			continue
		}
		var text []string
		for _, raw := range w.lines[start : end+1] {
			line := strings.TrimSpace(raw)
			line = strings.TrimPrefix(line, "/*")
			line = strings.TrimSuffix(line, "*/")
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "*"))
			if line != "" {
				text = append(text, line)
			}
		}
		return text, start
	}
	return nil, -1
}

func stripComment(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if p == "/*" {
			continue
		}
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(strings.TrimPrefix(line, p)), true
		}
	}
	return "", false
}

func (w *symbolWalker) pythonDocstring(n *Node) string {
	block := n.Child("block")
	if block == nil || len(block.Children) == 0 {
		return ""
	}
	first := block.Children[0]
	if first.Type != "expression_statement" || len(first.Children) == 0 || first.Children[0].Type != "string" {
		return ""
	}
	return trimPythonString(first.Children[0].Content(w.source))
}

func trimPythonString(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

// signature is the first line of a declaration up to its opening brace.
func signature(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)
	if i := strings.Index(first, "{"); i > 0 {
		return strings.TrimSpace(first[:i])
	}
	return first
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", s, false
	}
	return s[:i], s[i+len(sep):], true
}

func joinScope(outer, inner string) string {
	if outer == "" {
		return inner
	}
	return outer + "." + inner
}

func inClass(scope []frame) bool {
	if len(scope) == 0 {
		return false
	}
	last := scope[len(scope)-1]
	return !last.fn && !last.ns
}

func scopeName(scope []frame) string {
	names := make([]string, 0, len(scope))
	for _, f := range scope {
		if f.name != "" {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, ".")
}
