package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokkworkbench/core/pkg/project"
	"github.com/brokkworkbench/core/pkg/watch"
)

func newRoot(t *testing.T) project.Root {
	t.Helper()
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)
	return root
}

// TestClassifyGitMetadataBoundaries covers property #9: ".git/" paths are
// git metadata, ".github/" never is, and a root ".gitignore" never is.
func TestClassifyGitMetadataBoundaries(t *testing.T) {
	root := newRoot(t)
	batch := watch.EventBatch{Files: []project.ProjectFile{
		root.File(".git/HEAD"),
		root.File(".git/refs/heads/main"),
		root.File(".github/workflows/ci.yml"),
		root.File(".gitignore"),
		root.File("src/main.go"),
	}}

	cls := Classify(batch, []project.ProjectFile{root.File("src/main.go")})

	assert.True(t, cls.GitMetadataChanged)
	assert.True(t, cls.TrackedFilesChanged)
	require.Len(t, cls.ChangedTrackedFiles, 1)
	assert.Equal(t, "src/main.go", cls.ChangedTrackedFiles[0].RelPath())
}

func TestClassifyNoGitMetadata(t *testing.T) {
	root := newRoot(t)
	batch := watch.EventBatch{Files: []project.ProjectFile{
		root.File(".github/workflows/ci.yml"),
		root.File(".gitignore"),
	}}
	cls := Classify(batch, nil)
	assert.False(t, cls.GitMetadataChanged)
	assert.False(t, cls.TrackedFilesChanged)
}

func TestClassifyIsSignificant(t *testing.T) {
	root := newRoot(t)

	empty := Classify(watch.EventBatch{}, nil)
	assert.False(t, empty.IsSignificant)

	overflowOnly := Classify(watch.EventBatch{IsOverflowed: true}, nil)
	assert.True(t, overflowOnly.IsSignificant, "overflow-only batch is treated as significant per §9 open question")

	withFiles := Classify(watch.EventBatch{Files: []project.ProjectFile{root.File("a.go")}}, nil)
	assert.True(t, withFiles.IsSignificant)
}

func TestGetFilesWithExtensions(t *testing.T) {
	root := newRoot(t)
	batch := watch.EventBatch{Files: []project.ProjectFile{
		root.File("a.go"),
		root.File("b.txt"),
		root.File("c.go"),
	}}
	got := GetFilesWithExtensions(batch, map[string]bool{"go": true})
	require.Len(t, got, 2)
}

func TestGetFilesInDirectory(t *testing.T) {
	root := newRoot(t)
	batch := watch.EventBatch{Files: []project.ProjectFile{
		root.File("src/a.go"),
		root.File("src/nested/b.go"),
		root.File("other/c.go"),
	}}
	got := GetFilesInDirectory(batch, "src")
	require.Len(t, got, 2)
}

func TestContainsAny(t *testing.T) {
	root := newRoot(t)
	batch := watch.EventBatch{Files: []project.ProjectFile{root.File("a.go")}}
	assert.True(t, ContainsAny(batch, []project.ProjectFile{root.File("a.go")}))
	assert.False(t, ContainsAny(batch, []project.ProjectFile{root.File("b.go")}))
}
