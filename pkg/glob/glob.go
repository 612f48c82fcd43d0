// Package glob expands wildcard paths against the filesystem.
package glob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Expander resolves glob patterns. Relative patterns are anchored at BaseDir.
type Expander struct {
	BaseDir string
}

func NewExpander(baseDir string) *Expander {
	return &Expander{BaseDir: baseDir}
}

// IsPattern reports whether path contains a wildcard and must be expanded.
func IsPattern(path string) bool {
	return strings.Contains(path, "*")
}

// Expand returns the paths currently matching pattern. Only a "**" segment descends
// through nested directories; "*" stays within the directory level it appears in.
// No match yields an empty slice.
func (e *Expander) Expand(pattern string) ([]string, error) {
	fullPattern := ExpandHome(pattern)
	if !filepath.IsAbs(fullPattern) && e.BaseDir != "" {
		fullPattern = filepath.Join(ExpandHome(e.BaseDir), fullPattern)
	}

	matches, err := doublestar.FilepathGlob(fullPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	if matches == nil {
		return []string{}, nil
	}

	return matches, nil
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
