package project

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// essentialIgnorePatterns are always ignored regardless of .gitignore
// content, mirroring the teacher's "essential ledit patterns" idiom of
// keeping the tool's own workspace directory out of the project file set.
var essentialIgnorePatterns = []string{
	".brokk/",
	".brokk/*",
	".git/",
}

// IgnoreRules compiles the effective ignore list for a project root: the
// essential patterns, the root .gitignore, and an optional .brokkignore,
// in that precedence order (later lines can re-include via "!" per
// gitignore semantics).
type IgnoreRules struct {
	compiled *ignore.GitIgnore
}

// LoadIgnoreRules reads .gitignore and .brokkignore beneath root and
// compiles them alongside the essential patterns.
func LoadIgnoreRules(root Root) *IgnoreRules {
	var lines []string
	lines = append(lines, essentialIgnorePatterns...)

	if b, err := os.ReadFile(filepath.Join(root.Abs(), ".gitignore")); err == nil {
		lines = append(lines, strings.Split(string(b), "\n")...)
	}
	if b, err := os.ReadFile(filepath.Join(root.Abs(), ".brokkignore")); err == nil {
		lines = append(lines, strings.Split(string(b), "\n")...)
	}

	var filtered []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" && !strings.HasPrefix(l, "#") {
			filtered = append(filtered, l)
		}
	}
	return &IgnoreRules{compiled: ignore.CompileIgnoreLines(filtered...)}
}

// Ignored reports whether relPath (project-root-relative, "/"-separated)
// should be excluded from the project file set.
func (r *IgnoreRules) Ignored(relPath string) bool {
	if r == nil || r.compiled == nil {
		return false
	}
	return r.compiled.MatchesPath(relPath)
}
