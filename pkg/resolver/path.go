package resolver

import (
	"path/filepath"

	"github.com/dukex/filestage/pkg/glob"
)

// NormalizePath expands ~, cleans path and anchors relative paths at workingDir.
// Without a working directory relative paths are made absolute against the process
// working directory.
func NormalizePath(path, workingDir string) string {
	path = filepath.Clean(glob.ExpandHome(path))
	if filepath.IsAbs(path) {
		return path
	}

	if workingDir != "" {
		return filepath.Join(NormalizePath(workingDir, ""), path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}

// canonical collapses symlinks so two spellings of one file compare equal.
func canonical(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}

	return resolved
}
