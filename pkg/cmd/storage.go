package cmd

import (
	"log/slog"
	"path/filepath"

	"github.com/dukex/filestage/pkg/storage"
)

const secretFileName = ".storage_secret"

// NewFileStorage builds the local file storage rooted at tempFolder. The secret naming
// owner folders is kept next to them, so access survives restarts.
func NewFileStorage(tempFolder string, logger *slog.Logger) (*storage.LocalStorage, error) {
	secret, err := storage.LoadSecret(filepath.Join(tempFolder, secretFileName))
	if err != nil {
		return nil, err
	}

	return storage.NewLocalStorage(secret, logger), nil
}
