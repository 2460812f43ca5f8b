package chunk

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry holds the languages symbols can be extracted from.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with Go, Python, JavaScript,
// TypeScript, Java, C, C++ and Rust registered.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.register(&LanguageConfig{
		Name:            "go",
		Extensions:      []string{".go"},
		FunctionTypes:   []string{"function_declaration"},
		MethodTypes:     []string{"method_declaration"},
		TypeDefTypes:    []string{"type_spec", "type_alias"},
		ConstantTypes:   []string{"const_spec"},
		VariableTypes:   []string{"var_spec"},
		CommentPrefixes: []string{"//", "/*"},
	}, golang.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py", ".pyi"},
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
		VariableTypes: []string{"assignment"},

		MembersAreMethods: true,
	}, python.GetLanguage())

	js := &LanguageConfig{
		Name:            "javascript",
		Extensions:      []string{".js", ".mjs", ".cjs"},
		FunctionTypes:   []string{"function_declaration", "generator_function_declaration"},
		MethodTypes:     []string{"method_definition"},
		ClassTypes:      []string{"class_declaration"},
		ConstantTypes:   []string{"lexical_declaration"},
		VariableTypes:   []string{"variable_declaration"},
		CommentPrefixes: []string{"//", "/*"},
	}
	r.register(js, javascript.GetLanguage())
	r.register(js.derive("jsx", ".jsx"), javascript.GetLanguage())

	ts := &LanguageConfig{
		Name:            "typescript",
		Extensions:      []string{".ts", ".mts", ".cts"},
		FunctionTypes:   js.FunctionTypes,
		MethodTypes:     []string{"method_definition", "method_signature", "abstract_method_signature"},
		ClassTypes:      []string{"class_declaration", "abstract_class_declaration"},
		InterfaceTypes:  []string{"interface_declaration"},
		TypeDefTypes:    []string{"type_alias_declaration", "enum_declaration"},
		ConstantTypes:   js.ConstantTypes,
		VariableTypes:   js.VariableTypes,
		CommentPrefixes: js.CommentPrefixes,
	}
	r.register(ts, typescript.GetLanguage())
	r.register(ts.derive("tsx", ".tsx"), tsx.GetLanguage())

	blockComments := []string{"//", "/*"}

	r.register(&LanguageConfig{
		Name:            "java",
		Extensions:      []string{".java"},
		MethodTypes:     []string{"method_declaration", "constructor_declaration"},
		ClassTypes:      []string{"class_declaration", "record_declaration"},
		InterfaceTypes:  []string{"interface_declaration", "annotation_type_declaration"},
		TypeDefTypes:    []string{"enum_declaration"},
		ConstantTypes:   []string{"field_declaration"},
		CommentPrefixes: blockComments,
		DocSkipPrefixes: []string{"@"},
	}, java.GetLanguage())

	r.register(&LanguageConfig{
		Name:            "c",
		Extensions:      []string{".c", ".h"},
		FunctionTypes:   []string{"function_definition"},
		TypeDefTypes:    []string{"struct_specifier", "union_specifier", "enum_specifier", "type_definition"},
		VariableTypes:   []string{"declaration"},
		CommentPrefixes: blockComments,
	}, c.GetLanguage())

	r.register(&LanguageConfig{
		Name:              "cpp",
		Extensions:        []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
		FunctionTypes:     []string{"function_definition"},
		ClassTypes:        []string{"class_specifier", "struct_specifier", "union_specifier"},
		TypeDefTypes:      []string{"enum_specifier", "type_definition", "alias_declaration"},
		VariableTypes:     []string{"declaration"},
		NamespaceTypes:    []string{"namespace_definition"},
		MembersAreMethods: true,
		CommentPrefixes:   append([]string{"///"}, blockComments...),
		DocSkipPrefixes:   []string{"template"},
	}, cpp.GetLanguage())

	r.register(&LanguageConfig{
		Name:              "rust",
		Extensions:        []string{".rs"},
		FunctionTypes:     []string{"function_item", "function_signature_item"},
		ClassTypes:        []string{"struct_item", "union_item"},
		InterfaceTypes:    []string{"trait_item"},
		TypeDefTypes:      []string{"enum_item", "type_item"},
		ConstantTypes:     []string{"const_item"},
		VariableTypes:     []string{"static_item"},
		ScopeTypes:        []string{"impl_item"},
		NamespaceTypes:    []string{"mod_item"},
		MembersAreMethods: true,
		CommentPrefixes:   []string{"///", "//!", "//", "/*"},
		DocSkipPrefixes:   []string{"#["},
	}, rust.GetLanguage())

	return r
}

// derive copies c under a new name and extension set.
func (c *LanguageConfig) derive(name string, exts ...string) *LanguageConfig {
	out := *c
	out.Name = name
	out.Extensions = exts
	return &out
}

func (r *LanguageRegistry) register(cfg *LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// GetByName returns the configuration of a language.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetTreeSitterLanguage returns the grammar of a language.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// LanguageForPath returns the registered language of a file, or "".
func (r *LanguageRegistry) LanguageForPath(path string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extToLang[strings.ToLower(filepath.Ext(path))]
}

// Languages returns the registered language names, sorted.
func (r *LanguageRegistry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}

// LanguageMarkdown is the language reported for markdown files.
const LanguageMarkdown = "markdown"

var markdownExtensions = map[string]bool{".md": true, ".markdown": true, ".mdx": true}

// IsMarkdown reports whether path is a markdown file.
func IsMarkdown(path string) bool {
	return markdownExtensions[strings.ToLower(filepath.Ext(path))]
}

// LanguageForPath returns the language of path using the default registry,
// "markdown" for markdown files, or "" when unknown.
func LanguageForPath(path string) string {
	if IsMarkdown(path) {
		return LanguageMarkdown
	}
	return defaultRegistry.LanguageForPath(path)
}
