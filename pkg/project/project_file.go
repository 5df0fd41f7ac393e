// Package project defines the core value objects shared by every subsystem:
// the project root, the ProjectFile abstraction, and project-wide ignore
// rules used when enumerating the file set.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is an absolute directory under which every workspace path is stored
// as a relative path.
type Root struct {
	abs string
}

// NewRoot creates a Root from an absolute or relative directory path,
// resolving it to an absolute, cleaned path.
func NewRoot(dir string) (Root, error) {
	if strings.TrimSpace(dir) == "" {
		return Root{}, fmt.Errorf("project root: empty path")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("project root: %w", err)
	}
	return Root{abs: filepath.Clean(abs)}, nil
}

// Abs returns the absolute path of the project root.
func (r Root) Abs() string { return r.abs }

// File returns a ProjectFile for relPath, a path relative to the root.
// relPath is canonicalized per the resolver's normalization rules.
func (r Root) File(relPath string) ProjectFile {
	return ProjectFile{root: r, rel: CanonicalizeRelPath(relPath)}
}

// ProjectFile pairs a project root with a canonicalized relative path.
// Two ProjectFiles are equal iff both components are equal after
// canonicalization. ProjectFile is an immutable value object.
type ProjectFile struct {
	root Root
	rel  string
}

// Equal reports whether two ProjectFiles reference the same root and
// relative path.
func (f ProjectFile) Equal(o ProjectFile) bool {
	return f.root.abs == o.root.abs && f.rel == o.rel
}

// RelPath returns the canonicalized path relative to the project root,
// using "/" as the separator regardless of platform.
func (f ProjectFile) RelPath() string { return f.rel }

// AbsPath returns the absolute filesystem path of the file.
func (f ProjectFile) AbsPath() string {
	return filepath.Join(f.root.abs, filepath.FromSlash(f.rel))
}

// GetFileName returns the base name of the file.
func (f ProjectFile) GetFileName() string { return path_Base(f.rel) }

// GetParent returns the ProjectFile of the parent directory, or the root
// itself if the file is at the top level.
func (f ProjectFile) GetParent() ProjectFile {
	dir := path_Dir(f.rel)
	if dir == "." {
		dir = ""
	}
	return ProjectFile{root: f.root, rel: dir}
}

// Exists reports whether the file currently exists on disk.
func (f ProjectFile) Exists() bool {
	_, err := os.Stat(f.AbsPath())
	return err == nil
}

// IsDir reports whether the path currently exists and is a directory.
func (f ProjectFile) IsDir() bool {
	info, err := os.Stat(f.AbsPath())
	return err == nil && info.IsDir()
}

// ReadString reads the file's contents as a string.
func (f ProjectFile) ReadString() (string, error) {
	b, err := os.ReadFile(f.AbsPath())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.rel, err)
	}
	return string(b), nil
}

// WriteString writes content to the file, creating parent directories as
// needed. This is a plain overwrite; callers that must preserve the
// trailing-newline convention of the previous content should read first.
func (f ProjectFile) WriteString(content string) error {
	abs := f.AbsPath()
	if dir := filepath.Dir(abs); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.rel, err)
	}
	return nil
}

// Root returns the project root this file belongs to.
func (f ProjectFile) Root() Root { return f.root }

func (f ProjectFile) String() string { return f.rel }

// path_Base/path_Dir operate on "/"-separated relative paths regardless of
// host OS, since RelPath is always stored slash-normalized.
func path_Base(p string) string {
	if p == "" {
		return ""
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func path_Dir(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return "."
}
