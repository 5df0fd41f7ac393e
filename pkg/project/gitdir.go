package project

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveGitDir returns the directory that should actually be watched for
// git metadata changes under repoRoot/.git. In the common case that's simply
// repoRoot/.git. In a git-worktree checkout, ".git" is a *file* containing a
// line like "gitdir: /path/to/main/.git/worktrees/<name>", and the real
// metadata lives at that external path — which must be watched too (§4.D
// "Worktree awareness").
//
// No git binary is invoked; this is a plain read of the ".git" entry's
// content, which is the entirety of what the gitdir-pointer convention
// requires.
func ResolveGitDir(repoRoot string) (dir string, ok bool) {
	gitPath := filepath.Join(repoRoot, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		return gitPath, true
	}

	b, err := os.ReadFile(gitPath)
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(b))
	const prefix = "gitdir:"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	target := strings.TrimSpace(line[len(prefix):])
	if !filepath.IsAbs(target) {
		target = filepath.Join(repoRoot, target)
	}
	return filepath.Clean(target), true
}
