// Package editblock implements the Edit-Block Engine: a syntactic parser for
// LLM-authored SEARCH/REPLACE blocks, a path resolver that disambiguates the
// filenames those blocks name against a workspace, and an applier that
// carries out the edits against real files.
package editblock

import (
	"path/filepath"
	"strings"

	"github.com/brokkworkbench/core/pkg/project"
)

// ResolveKind discriminates the outcome of Resolve, modeled as a sum type
// per the teacher-informed re-architecture note for exception-carrying
// control flow: callers pattern-match on Kind rather than catching errors.
type ResolveKind int

const (
	ResolveFound ResolveKind = iota
	ResolveNotFound
	ResolveInvalid
	ResolveAmbiguous
)

// ResolveResult is the outcome of resolving a raw LLM-supplied filename
// against a workspace context and the project's file set.
type ResolveResult struct {
	Kind       ResolveKind
	File       project.ProjectFile   // set when Kind is Found or NotFound
	Candidates []project.ProjectFile // set when Kind is Ambiguous
	Reason     string                // set when Kind is Invalid
}

// Err renders a ResolveResult's failure (Invalid/Ambiguous) as an error,
// or nil for Found/NotFound.
func (r ResolveResult) Err() error {
	switch r.Kind {
	case ResolveInvalid:
		return &InvalidFilenameError{Reason: r.Reason}
	case ResolveAmbiguous:
		return &AmbiguousFileError{Candidates: r.Candidates}
	default:
		return nil
	}
}

// InvalidFilenameError reports a raw filename the resolver rejected outright.
type InvalidFilenameError struct{ Reason string }

func (e *InvalidFilenameError) Error() string { return "invalid filename: " + e.Reason }

// AmbiguousFileError reports that more than one file could satisfy a
// basename-only reference.
type AmbiguousFileError struct{ Candidates []project.ProjectFile }

func (e *AmbiguousFileError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.RelPath()
	}
	return "ambiguous filename, candidates: " + strings.Join(names, ", ")
}

// stripCommentPrefix removes a single leading "//" or "#" line-comment
// marker when what remains still looks like a path (non-blank after
// trimming), per §4.A.
func stripCommentPrefix(raw string) string {
	t := strings.TrimSpace(raw)
	for _, prefix := range []string{"//", "#"} {
		if strings.HasPrefix(t, prefix) {
			rest := strings.TrimSpace(strings.TrimPrefix(t, prefix))
			if rest != "" {
				return rest
			}
		}
	}
	return t
}

// escapesRoot reports whether a "/"-separated, already-comment-stripped
// path climbs above the project root via more ".." segments than
// directory depth, e.g. "../../etc/passwd". CanonicalizeRelPath clamps
// such paths instead of rejecting them (it's a pure string transform
// shared by code that has no "invalid" outcome to report); Resolve is the
// layer responsible for treating an actual escape as invalid input.
func escapesRoot(slashed string) bool {
	depth := 0
	for _, seg := range strings.Split(slashed, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

// normalize applies §4.A's separator/comment/absolute-path rules and
// reports whether the raw input contained a path separator (needed for
// the slashed-path authority rule).
//
// Distinguishing a "workspace-root-relative" leading slash (the common
// LLM style "/src/Main.java") from a genuine absolute filesystem path
// outside the project is not fully determinable from the string alone;
// we resolve that ambiguity (documented in DESIGN.md) by accepting absolute
// inputs under the project root (made relative), rejecting absolute inputs
// that name a directory above the root (a proper prefix of its path), and
// rejecting any path whose ".." segments climb above the root. Every other
// leading "/" is treated as the workspace-relative shorthand, including
// absolute paths elsewhere on the filesystem.
func normalize(root project.Root, raw string) (rel string, hadSeparator bool, invalid bool, reason string) {
	stripped := stripCommentPrefix(raw)
	if stripped == "" {
		return "", false, true, "blank filename"
	}
	if strings.ContainsRune(stripped, 0) {
		return "", false, true, "filename contains NUL"
	}
	hadSeparator = strings.ContainsAny(stripped, "/\\")
	norm := strings.ReplaceAll(stripped, "\\", "/")

	rootSlash := filepath.ToSlash(root.Abs())
	if filepath.IsAbs(norm) && strings.HasPrefix(norm, rootSlash+"/") {
		rel = project.CanonicalizeRelPath(strings.TrimPrefix(norm, rootSlash+"/"))
		return rel, hadSeparator, false, ""
	}
	if filepath.IsAbs(norm) && norm != rootSlash && strings.HasPrefix(rootSlash, norm+"/") {
		return "", hadSeparator, true, "absolute path outside project root"
	}

	if escapesRoot(norm) {
		return "", hadSeparator, true, "path escapes project root"
	}
	rel = project.CanonicalizeRelPath(norm)
	return rel, hadSeparator, false, ""
}

func basenameOf(relPath string) string {
	if i := strings.LastIndex(relPath, "/"); i >= 0 {
		return relPath[i+1:]
	}
	return relPath
}

// Resolve implements the Path Resolver (§4.A): exact context match, unique
// basename match within the workspace context, unique basename match
// across the wider project file set, and finally the new-or-missing
// fallback. contextFiles is the workspace context's file set; projectFiles
// is the project-wide file set (step 3's search space) — callers may pass
// nil if no wider set is available, in which case step 3 is skipped.
func Resolve(root project.Root, contextFiles, projectFiles []project.ProjectFile, rawFilename string, allowNew bool) ResolveResult {
	rel, hadSeparator, invalid, reason := normalize(root, rawFilename)
	if invalid {
		return ResolveResult{Kind: ResolveInvalid, Reason: reason}
	}
	if rel == "" {
		return ResolveResult{Kind: ResolveInvalid, Reason: "blank filename"}
	}

	// Step 1: exact match against the workspace context.
	for _, f := range contextFiles {
		if f.RelPath() == rel {
			return ResolveResult{Kind: ResolveFound, File: f}
		}
	}

	// Slashed-path authority rule: a raw name with a separator is
	// authoritative once it fails an exact match. No basename fuzzy
	// matching is attempted; fall straight to the new/missing outcome.
	if hadSeparator {
		return newOrMissing(root, rel, allowNew)
	}

	// Step 2: unique basename match within the workspace context.
	if res, ok := basenameMatch(root, contextFiles, rel); ok {
		return res
	}

	// Step 3: unique basename match across the project file set.
	if res, ok := basenameMatch(root, projectFiles, rel); ok {
		return res
	}

	// Step 4: new file or missing, literal target.
	return newOrMissing(root, rel, allowNew)
}

// basenameMatch looks for files in candidates whose basename equals the
// target's basename. ok is false when there is no match at all (caller
// should keep falling through); when ok is true the ResolveResult is
// either Found (exactly one match) or Ambiguous (more than one) — both
// are terminal.
func basenameMatch(root project.Root, candidates []project.ProjectFile, rel string) (ResolveResult, bool) {
	target := basenameOf(rel)
	var matches []project.ProjectFile
	for _, f := range candidates {
		if basenameOf(f.RelPath()) == target {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return ResolveResult{}, false
	case 1:
		return ResolveResult{Kind: ResolveFound, File: matches[0]}, true
	default:
		return ResolveResult{Kind: ResolveAmbiguous, Candidates: matches}, true
	}
}

func newOrMissing(root project.Root, rel string, allowNew bool) ResolveResult {
	f := root.File(rel)
	if allowNew {
		return ResolveResult{Kind: ResolveFound, File: f}
	}
	return ResolveResult{Kind: ResolveNotFound, File: f}
}
