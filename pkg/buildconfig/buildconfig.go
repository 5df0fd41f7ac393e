// Package buildconfig persists the Build Details document (§6) at
// <project>/.brokk/project.properties, JSON-encoded. Modeled on the
// teacher's pkg/config/config.go stat-then-load/create-on-absence pattern,
// narrowed to the single document the spec defines (no LLM provider/model
// settings — those belong to the out-of-scope LLM client).
package buildconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// BuildDetails is the persistent Build Details document (§6).
type BuildDetails struct {
	BuildLintCommand     string            `json:"buildLintCommand,omitempty"`
	TestAllCommand       string            `json:"testAllCommand,omitempty"`
	TestSomeCommand      string            `json:"testSomeCommand,omitempty"`
	ExclusionPatterns    []string          `json:"exclusionPatterns"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`

	// ExcludedDirectories is accepted on load as the legacy key and rewritten
	// into ExclusionPatterns; it is never written back (json:"-").
	ExcludedDirectories []string `json:"-"`
}

// rawDoc mirrors the on-disk shape, including the legacy key, so we can
// detect its presence independent of the canonical field.
type rawDoc struct {
	BuildLintCommand     string            `json:"buildLintCommand,omitempty"`
	TestAllCommand       string            `json:"testAllCommand,omitempty"`
	TestSomeCommand      string            `json:"testSomeCommand,omitempty"`
	ExclusionPatterns    []string          `json:"exclusionPatterns"`
	ExcludedDirectories  []string          `json:"excludedDirectories,omitempty"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
}

// projectPropertiesPath returns <projectDir>/.brokk/project.properties.
func projectPropertiesPath(projectDir string) string {
	return filepath.Join(projectDir, ".brokk", "project.properties")
}

// workspacePropertiesPath returns <projectDir>/.brokk/workspace.properties,
// the sibling document JAVA_HOME migrates into (see DESIGN.md Open
// Question: "JAVA_HOME migration target").
func workspacePropertiesPath(projectDir string) string {
	return filepath.Join(projectDir, ".brokk", "workspace.properties")
}

// Load reads the Build Details document for projectDir, returning a zero
// value (empty, not an error) if the file does not yet exist — matching the
// teacher's "create on absence" convention, deferred to the caller via Save.
func Load(projectDir string) (BuildDetails, error) {
	path := projectPropertiesPath(projectDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return BuildDetails{ExclusionPatterns: []string{}}, nil
	}
	if err != nil {
		return BuildDetails{}, err
	}

	var raw rawDoc
	if err := json.Unmarshal(data, &raw); err != nil {
		return BuildDetails{}, err
	}

	bd := BuildDetails{
		BuildLintCommand:     raw.BuildLintCommand,
		TestAllCommand:       raw.TestAllCommand,
		TestSomeCommand:      raw.TestSomeCommand,
		EnvironmentVariables: raw.EnvironmentVariables,
	}

	patterns := raw.ExclusionPatterns
	if len(raw.ExcludedDirectories) > 0 {
		// Legacy key migration (§6): merge, then canonicalize together.
		patterns = append(append([]string{}, patterns...), raw.ExcludedDirectories...)
	}
	bd.ExclusionPatterns = CanonicalizeExclusionPatterns(projectDir, patterns)

	if jdkHome, ok := bd.EnvironmentVariables["JAVA_HOME"]; ok {
		delete(bd.EnvironmentVariables, "JAVA_HOME")
		if err := migrateJDKHome(projectDir, jdkHome); err != nil {
			return BuildDetails{}, err
		}
	}

	return bd, nil
}

// Save canonicalizes ExclusionPatterns and writes the document, creating
// <project>/.brokk if needed. The legacy excludedDirectories key is never
// written back; nil/absent ExclusionPatterns normalize to an empty array
// (§9 Open Question: "normalize-to-empty-set on save"), never JSON null.
func Save(projectDir string, bd BuildDetails) error {
	dir := filepath.Dir(projectPropertiesPath(projectDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	out := rawDoc{
		BuildLintCommand:     bd.BuildLintCommand,
		TestAllCommand:       bd.TestAllCommand,
		TestSomeCommand:      bd.TestSomeCommand,
		EnvironmentVariables: bd.EnvironmentVariables,
		ExclusionPatterns:    CanonicalizeExclusionPatterns(projectDir, bd.ExclusionPatterns),
	}
	if out.ExclusionPatterns == nil {
		out.ExclusionPatterns = []string{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(projectPropertiesPath(projectDir), data, 0o644)
}

// CanonicalizeExclusionPatterns applies §6's canonicalization rules:
// backslashes become "/", trailing "/" trims, leading "./" strips, absolute
// paths inside the project root rewrite to relative, and a leading "/" is
// preserved only when the path is genuinely outside the project root.
// Duplicate patterns collapse; order is preserved by first occurrence.
func CanonicalizeExclusionPatterns(projectDir string, patterns []string) []string {
	root := filepath.ToSlash(filepath.Clean(projectDir))
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))

	for _, p := range patterns {
		c := canonicalizeOnePattern(root, p)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func canonicalizeOnePattern(root, p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimRight(p, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return ""
	}

	if strings.HasPrefix(p, "/") {
		abs := filepath.ToSlash(filepath.Clean(p))
		if abs == root || strings.HasPrefix(abs, root+"/") {
			rel := strings.TrimPrefix(abs, root)
			return strings.TrimPrefix(rel, "/")
		}
		// Outside the project root: leading "/" is preserved verbatim.
		return abs
	}
	return p
}

// migrateJDKHome writes JAVA_HOME's value into workspace.properties under
// the jdk.home key, the one place this core's scope reaches outside the
// three named subsystems (documented in DESIGN.md).
func migrateJDKHome(projectDir, jdkHome string) error {
	path := workspacePropertiesPath(projectDir)
	doc := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &doc)
	}
	doc["jdk.home"] = jdkHome

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
