package project

import (
	"os"
	"path/filepath"
)

// FileSet walks the project root and returns every non-ignored, non-directory
// ProjectFile. This backs the Path Resolver's step 3 (unique basename match
// across the *project* file set, as opposed to only the workspace context).
func FileSet(root Root, ignores *IgnoreRules) ([]ProjectFile, error) {
	var out []ProjectFile
	err := filepath.Walk(root.Abs(), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root.Abs(), p)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		slashRel := filepath.ToSlash(rel)
		if info.IsDir() {
			if ignores.Ignored(slashRel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if ignores.Ignored(slashRel) {
			return nil
		}
		out = append(out, root.File(slashRel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
