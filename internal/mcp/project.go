package mcp

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	goModuleRe      = regexp.MustCompile(`^module\s+(\S+)`)
	pyprojectNameRe = regexp.MustCompile(`^\s*name\s*=\s*["']([^"']+)["']`)
)

// DetectProject names the project at rootPath from its manifest. It checks
// go.mod, then package.json, then pyproject.toml, and falls back to the
// directory name with type "unknown".
func DetectProject(projectID, rootPath string) ProjectInfo {
	info := ProjectInfo{
		ID:       projectID,
		RootPath: rootPath,
		Name:     filepath.Base(rootPath),
		Type:     "unknown",
	}

	detectors := []struct {
		typ    string
		detect func(string) string
	}{
		{"go", goModuleName},
		{"node", packageJSONName},
		{"python", pyprojectName},
	}
	for _, d := range detectors {
		if name := d.detect(rootPath); name != "" {
			info.Name = name
			info.Type = d.typ
			break
		}
	}
	return info
}

// goModuleName returns the last segment of the go.mod module path.
func goModuleName(root string) string {
	var name string
	scanLines(filepath.Join(root, "go.mod"), func(line string) bool {
		if m := goModuleRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			name = filepath.Base(m[1])
			return false
		}
		return true
	})
	return name
}

// packageJSONName returns the package name without its npm scope.
func packageJSONName(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	if strings.HasPrefix(pkg.Name, "@") {
		if i := strings.LastIndexByte(pkg.Name, '/'); i >= 0 {
			return pkg.Name[i+1:]
		}
	}
	return pkg.Name
}

// pyprojectName returns name from the [project] table.
func pyprojectName(root string) string {
	var name string
	inProject := false
	scanLines(filepath.Join(root, "pyproject.toml"), func(line string) bool {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inProject = trimmed == "[project]"
			return true
		}
		if inProject {
			if m := pyprojectNameRe.FindStringSubmatch(line); m != nil {
				name = m[1]
				return false
			}
		}
		return true
	})
	return name
}

// scanLines calls fn for each line of path until fn returns false.
func scanLines(path string, fn func(line string) bool) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if !fn(scanner.Text()) {
			return
		}
	}
}
