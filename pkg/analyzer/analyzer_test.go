package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokkworkbench/core/pkg/project"
)

func writeGoFile(t *testing.T, root project.Root, rel, content string) project.ProjectFile {
	t.Helper()
	f := root.File(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.AbsPath()), 0o755))
	require.NoError(t, f.WriteString(content))
	return f
}

func TestMethodSourceUniqueNameResolves(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)

	src := `package b

type B struct{}

func (r B) foo(x int) int { return x }

func (r B) fooString(x string) string { return x }
`
	f := writeGoFile(t, root, "B.go", src)

	a, err := NewGoAnalyzer(root, []project.ProjectFile{f})
	require.NoError(t, err)

	_, err = a.MethodSource("B.foo")
	require.NoError(t, err, "a single method named foo should resolve cleanly")
}

// TestMethodSourceTrueAmbiguity covers scenario S3: a receiver type with two
// methods of the same name reports AmbiguousSymbolError.
func TestMethodSourceTrueAmbiguity(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)

	src := `package b

type B struct{}

func (r B) foo(x int) int { return x }
func (r B) foo(x string) string { return x }
`
	f := writeGoFile(t, root, "B.go", src)
	a, err := NewGoAnalyzer(root, []project.ProjectFile{f})
	require.NoError(t, err)

	_, err = a.MethodSource("B.foo")
	require.Error(t, err)
	var ambErr *AmbiguousSymbolError
	require.ErrorAs(t, err, &ambErr)
	assert.Contains(t, ambErr.Error(), "Multiple overloads found for 'B.foo'")
	assert.Contains(t, ambErr.Error(), "Please provide a non-overloaded, unique name")
}

func TestMethodSourceNoMatch(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)
	a, err := NewGoAnalyzer(root, nil)
	require.NoError(t, err)

	_, err = a.MethodSource("Missing.bar")
	require.Error(t, err)
	var nmErr *NoMatchError
	require.ErrorAs(t, err, &nmErr)
	assert.Contains(t, nmErr.Error(), "No method source found for 'Missing.bar'")
}

func TestClassSourceResolvesType(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)
	src := `package widget

type Widget struct {
	Name string
}
`
	f := writeGoFile(t, root, "widget.go", src)
	a, err := NewGoAnalyzer(root, []project.ProjectFile{f})
	require.NoError(t, err)

	rng, err := a.ClassSource("widget.Widget")
	require.NoError(t, err)
	assert.Contains(t, rng.Text, "type Widget struct")
}

func TestSearchSymbolsIncludesParentOnExactShortName(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)
	src := `package widget

type Widget struct{}

func (w Widget) Render() string { return "" }
`
	f := writeGoFile(t, root, "widget.go", src)
	a, err := NewGoAnalyzer(root, []project.ProjectFile{f})
	require.NoError(t, err)

	results := a.SearchSymbols("Render")
	var sawMethod, sawClass bool
	for _, r := range results {
		if r.Kind == KindFunction {
			sawMethod = true
		}
		if r.Kind == KindClass {
			sawClass = true
		}
	}
	assert.True(t, sawMethod)
	assert.True(t, sawClass, "parent class should be included when query equals short name")
}

func TestGetUsagesTooManyCallsites(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)

	var lines string
	for i := 0; i < usageCallsiteLimit+10; i++ {
		lines += "var _ = widget\n"
	}
	src := "package widget\n\nfunc widget() {}\n" + lines
	f := writeGoFile(t, root, "w.go", src)
	a, err := NewGoAnalyzer(root, []project.ProjectFile{f})
	require.NoError(t, err)

	_, err = a.GetUsages("widget")
	require.Error(t, err)
	var tooMany *TooManyCallsites
	require.ErrorAs(t, err, &tooMany)
	assert.Greater(t, tooMany.Observed, tooMany.Limit)
}

func TestImportStatementsOf(t *testing.T) {
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)
	src := `package main

import (
	"fmt"
	"os"
)

func main() { fmt.Println(os.Args) }
`
	f := writeGoFile(t, root, "main.go", src)
	a, err := NewGoAnalyzer(root, []project.ProjectFile{f})
	require.NoError(t, err)

	imports := a.ImportStatementsOf(f)
	assert.ElementsMatch(t, []string{"fmt", "os"}, imports)
}
