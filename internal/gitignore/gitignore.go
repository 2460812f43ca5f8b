// Package gitignore matches paths against gitignore-style patterns. The
// scanner uses it for .gitignore files and for configured exclude patterns.
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!keep.log")
//	m.AddPatternWithBase("tmp/", "web")
//	m.Match("web/tmp/cache.bin", false) // true
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled patterns. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	base     string
	original string
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// NewFromPatterns returns a Matcher holding patterns.
func NewFromPatterns(patterns ...string) *Matcher {
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

// AddPattern adds one pattern relative to the root.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a pattern that applies only below base, as a
// .gitignore in a subdirectory does. Blank lines and comments are skipped.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	r, ok := parseRule(pattern)
	if !ok {
		return
	}
	r.base = strings.Trim(filepath.ToSlash(base), "/")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile adds every pattern in a gitignore file, scoped to base.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read gitignore file: %w", err)
	}
	return nil
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether path (slash or OS separated, relative to the root)
// is ignored. A path inside an ignored directory is ignored and cannot be
// re-included by a negation, as in git.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" || path == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if m.ignored(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return m.ignored(path, isDir)
}

// ignored applies every rule to one path; the last match wins.
func (m *Matcher) ignored(path string, isDir bool) bool {
	result := false
	for _, r := range m.rules {
		rel, ok := r.relative(path)
		if !ok || (r.dirOnly && !isDir) {
			continue
		}
		if r.re.MatchString(rel) {
			result = !r.negate
		}
	}
	return result
}

func (r rule) relative(path string) (string, bool) {
	if r.base == "" {
		return path, true
	}
	if !strings.HasPrefix(path, r.base+"/") {
		return "", false
	}
	return strings.TrimPrefix(path, r.base+"/"), true
}

func parseRule(line string) (rule, bool) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return rule{}, false
	}
	if escapedSpace && strings.HasSuffix(p, `\`) {
		p = strings.TrimSuffix(p, `\`) + " "
	}

	r := rule{original: p}
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}

	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return rule{}, false
	}

	// A slash anywhere but the end anchors the pattern to its base.
	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")

	expr := "^" + globToRegex(p) + "$"
	if !anchored {
		expr = "^(?:.*/)?" + expr[1:]
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// globToRegex translates gitignore glob syntax into a regular expression.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case c == '*' && strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case c == '*' && strings.HasPrefix(glob[i:], "**") && i+2 == len(glob):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case c == '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case c == '\\' && i+1 < len(glob):
			i++
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
