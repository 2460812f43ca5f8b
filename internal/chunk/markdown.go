package chunk

import (
	"regexp"
	"strings"
)

var (
	// ATX headings: "# Title" through "###### Title", optional closing hashes.
	headingPattern = regexp.MustCompile(`^ {0,3}(#{1,6})[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)

	// Opening fence with an optional info string.
	fencePattern = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})[ \t]*([^`\\s]*)")
)

// RegexMarkdownParser is a line-based MarkdownParser. Headings inside fenced
// blocks and YAML frontmatter are ignored.
type RegexMarkdownParser struct{}

var _ MarkdownParser = RegexMarkdownParser{}

// NewMarkdownParser returns the default markdown parser.
func NewMarkdownParser() RegexMarkdownParser {
	return RegexMarkdownParser{}
}

// Parse scans source once. Line numbers are 1-indexed.
func (RegexMarkdownParser) Parse(source []byte) *MarkdownDocument {
	doc := &MarkdownDocument{}
	src := strings.TrimSuffix(strings.ReplaceAll(string(source), "\r\n", "\n"), "\n")
	if src == "" {
		return doc
	}
	lines := strings.Split(src, "\n")

	start := frontmatterEnd(lines)
	stack := make([]string, 6)

	var (
		open    *CodeBlock
		fence   string
		code    []string
		body    []string
		current = -1
	)
	closeSection := func(endLine int) {
		defer func() { body = nil }()
		if current < 0 {
			return
		}
		h := &doc.Headings[current]
		h.EndLine = endLine
		h.Body = strings.TrimSpace(strings.Join(body, "\n"))
	}

	for i := start; i < len(lines); i++ {
		line := lines[i]
		lineNo := i + 1

		if open != nil {
			if isClosingFence(line, fence) {
				open.EndLine = lineNo
				open.Code = strings.Join(code, "\n")
				doc.CodeBlocks = append(doc.CodeBlocks, *open)
				open, code = nil, nil
			} else {
				code = append(code, line)
			}
			body = append(body, line)
			continue
		}

		if m := fencePattern.FindStringSubmatch(line); m != nil {
			open = &CodeBlock{Language: strings.ToLower(m[2]), StartLine: lineNo}
			fence = m[1]
			body = append(body, line)
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			closeSection(lineNo - 1)

			level := len(m[1])
			text := strings.TrimSpace(m[2])
			stack[level-1] = text
			for j := level; j < len(stack); j++ {
				stack[j] = ""
			}
			var path []string
			for _, s := range stack[:level] {
				if s != "" {
					path = append(path, s)
				}
			}

			doc.Headings = append(doc.Headings, Heading{
				Text:  text,
				Level: level,
				Line:  lineNo,
				Path:  strings.Join(path, " > "),
			})
			current = len(doc.Headings) - 1
			continue
		}

		body = append(body, line)
	}

	// An unclosed fence runs to the end of the file.
	if open != nil {
		open.EndLine = len(lines)
		open.Code = strings.Join(code, "\n")
		doc.CodeBlocks = append(doc.CodeBlocks, *open)
	}
	closeSection(len(lines))

	return doc
}

// frontmatterEnd returns the index of the first line after a leading
// "---" delimited YAML block, or 0 when there is none.
func frontmatterEnd(lines []string) int {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return 0
	}
	for i := 1; i < len(lines); i++ {
		if t := strings.TrimSpace(lines[i]); t == "---" || t == "..." {
			return i + 1
		}
	}
	return 0
}

func isClosingFence(line, fence string) bool {
	t := strings.TrimSpace(line)
	if len(t) < len(fence) || t[0] != fence[0] {
		return false
	}
	return strings.Trim(t, string(fence[0])) == ""
}
