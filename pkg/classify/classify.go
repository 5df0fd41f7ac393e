// Package classify implements the Change Classifier (§4.E): a pure
// function separating git-metadata events from tracked-file events in an
// EventBatch, intersected against a workspace's tracked-file set.
//
// Grounded directly on the spec; the teacher (ledit) has no equivalent
// git-metadata/tracked-file split. Classification is a set-membership and
// prefix check — plain stdlib (strings/path), no library would improve it.
package classify

import (
	"strings"

	"github.com/brokkworkbench/core/pkg/project"
	"github.com/brokkworkbench/core/pkg/watch"
)

// Classification is the Change Classifier's output for one EventBatch
// (§4.E).
type Classification struct {
	GitMetadataChanged  bool
	TrackedFilesChanged bool
	ChangedTrackedFiles []project.ProjectFile
	IsSignificant       bool
}

// isGitMetadata reports whether a "/"-separated relative path is git
// metadata: it begins with ".git/" or equals ".git". ".github" must never
// match (§4.E invariant), nor must a root-level ".gitignore".
func isGitMetadata(relPath string) bool {
	return relPath == ".git" || strings.HasPrefix(relPath, ".git/")
}

// Classify implements §4.E: given a batch and the set of tracked files (the
// workspace's currently known project files), produce a Classification.
func Classify(batch watch.EventBatch, trackedFiles []project.ProjectFile) Classification {
	tracked := make(map[string]bool, len(trackedFiles))
	for _, f := range trackedFiles {
		tracked[f.RelPath()] = true
	}

	var c Classification
	for _, f := range batch.Files {
		if isGitMetadata(f.RelPath()) {
			c.GitMetadataChanged = true
			continue
		}
		if tracked[f.RelPath()] {
			c.TrackedFilesChanged = true
			c.ChangedTrackedFiles = append(c.ChangedTrackedFiles, f)
		}
	}

	// §9 Open Question: an overflow-only batch (no files) is treated as
	// significant, forcing the same full-refresh path as a non-empty batch —
	// documented as a deliberate choice rather than a guess.
	c.IsSignificant = len(batch.Files) > 0 || batch.IsOverflowed
	return c
}

// GetFilesWithExtensions returns the batch's files whose extension (without
// the leading ".") is in exts.
func GetFilesWithExtensions(batch watch.EventBatch, exts map[string]bool) []project.ProjectFile {
	var out []project.ProjectFile
	for _, f := range batch.Files {
		rel := f.RelPath()
		if i := strings.LastIndex(rel, "."); i >= 0 && exts[rel[i+1:]] {
			out = append(out, f)
		}
	}
	return out
}

// GetFilesInDirectory returns the batch's files whose relative path begins
// with dir+"/".
func GetFilesInDirectory(batch watch.EventBatch, dir string) []project.ProjectFile {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []project.ProjectFile
	for _, f := range batch.Files {
		if strings.HasPrefix(f.RelPath(), prefix) {
			out = append(out, f)
		}
	}
	return out
}

// ContainsAny reports whether the batch intersects the given set of files.
func ContainsAny(batch watch.EventBatch, set []project.ProjectFile) bool {
	want := make(map[string]bool, len(set))
	for _, f := range set {
		want[f.RelPath()] = true
	}
	for _, f := range batch.Files {
		if want[f.RelPath()] {
			return true
		}
	}
	return false
}
