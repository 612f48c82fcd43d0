// Package staging copies resolved files into a per-execution download folder.
package staging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukex/filestage/pkg/log"
)

// StagedFile pairs a resolved source file with its copy in the staging folder.
type StagedFile struct {
	Source string `json:"original_path"`
	Path   string `json:"download_path"`
}

// Manager stages files into one folder. Every source file is copied at most once;
// staging it again, under any spelling that resolves to the same file, returns the
// path recorded the first time.
type Manager struct {
	folder  string
	retries int
	logger  *slog.Logger

	mu     sync.Mutex
	staged map[string]string
}

type Option func(*Manager)

func WithRetries(retries int) Option {
	return func(m *Manager) {
		m.retries = retries
	}
}

func NewManager(folder string, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		folder:  folder,
		retries: DefaultRetries,
		logger:  log.OrDefault(logger, "staging"),
		staged:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) Folder() string {
	return m.folder
}

// Lookup returns the staged path of source if it was staged before.
func (m *Manager) Lookup(source string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, ok := m.staged[fileKey(source)]

	return path, ok
}

// Stage ensures a copy of source exists in the staging folder and returns its path.
func (m *Manager) Stage(source string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fileKey(source)
	if path, ok := m.staged[key]; ok {
		return path, nil
	}

	preferred := filepath.Join(m.folder, filepath.Base(source))

	path, err := UniqueFilename(preferred, m.retries)
	if err != nil {
		return "", err
	}

	if err := copyFile(source, path); err != nil {
		return "", err
	}

	m.staged[key] = path

	return path, nil
}

// fileKey identifies the file behind source, following symlinks.
func fileKey(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return filepath.Clean(abs)
	}

	return resolved
}

// StageAll stages sources in order. Files that cannot be staged are logged and left out.
func (m *Manager) StageAll(ctx context.Context, sources []string) []StagedFile {
	result := make([]StagedFile, 0, len(sources))

	for _, source := range sources {
		path, err := m.Stage(source)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to stage file", "file", source, "folder", m.folder, "error", err)

			continue
		}

		result = append(result, StagedFile{Source: source, Path: path})
	}

	return result
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", source, err)
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", destination, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(destination)

		return fmt.Errorf("failed to copy '%s' to '%s': %w", source, destination, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(destination)

		return fmt.Errorf("failed to write '%s': %w", destination, err)
	}

	return nil
}
