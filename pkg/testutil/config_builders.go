// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dukex/filestage/pkg/models"
)

// CreateTestConfig creates an empty ExecutionConfig that overrides fill in.
func CreateTestConfig(overrides ...func(*models.ExecutionConfig)) *models.ExecutionConfig {
	config := &models.ExecutionConfig{}

	for _, override := range overrides {
		override(config)
	}

	return config
}

// WithOutputFiles adds literal (generic) declarations.
func WithOutputFiles(paths ...string) func(*models.ExecutionConfig) {
	return func(c *models.ExecutionConfig) {
		for _, path := range paths {
			c.OutputFiles = append(c.OutputFiles, models.Literal(path))
		}
	}
}

// WithInlineImages adds structured inline-image declarations.
func WithInlineImages(paths ...string) func(*models.ExecutionConfig) {
	return func(c *models.ExecutionConfig) {
		for _, path := range paths {
			c.OutputFiles = append(c.OutputFiles, models.Structured(path, models.OutputKindInlineImage))
		}
	}
}

// WithParameter declares a parameter.
func WithParameter(name string, secure bool) func(*models.ExecutionConfig) {
	return func(c *models.ExecutionConfig) {
		c.Parameters = append(c.Parameters, models.ParameterConfig{Name: name, Secure: secure})
	}
}

// WithWorkingDirectory sets the directory relative declarations resolve against.
func WithWorkingDirectory(dir string) func(*models.ExecutionConfig) {
	return func(c *models.ExecutionConfig) {
		c.WorkingDirectory = dir
	}
}

// WriteFile creates path, and its parent folders, holding content.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(content)
}
