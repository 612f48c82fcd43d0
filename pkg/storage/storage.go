// Package storage keeps per-owner folders for files handed out to users and cleans
// them up once they expire.
package storage

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dukex/filestage/pkg/log"
)

// ErrInvalidOwner is returned when a folder is requested for a blank owner.
var ErrInvalidOwner = errors.New("invalid owner")

const secretSize = 32

// FileStorage hands out folders that only their owner may read from.
type FileStorage interface {
	// PrepareNewFolder creates a fresh folder for owner under base and returns its path.
	PrepareNewFolder(owner, base string) (string, error)
	// AllowedToAccess reports whether path lies inside one of owner's folders.
	AllowedToAccess(path, owner string) bool
	// StartAutoclean periodically removes the folders under folder older than maxAge.
	StartAutoclean(folder string, maxAge time.Duration) error
}

// LocalStorage is a FileStorage on the local filesystem. Owner folders are named by a
// keyed hash of the owner, so folder names reveal nothing about their owners.
type LocalStorage struct {
	secret []byte
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ FileStorage = (*LocalStorage)(nil)

func NewLocalStorage(secret []byte, logger *slog.Logger) *LocalStorage {
	return &LocalStorage{
		secret: secret,
		logger: log.OrDefault(logger, "file_storage"),
	}
}

// LoadSecret reads the storage secret at path, creating a random one when the file is missing.
func LoadSecret(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err == nil {
		return []byte(strings.TrimSpace(string(content))), nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read storage secret: %w", err)
	}

	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate storage secret: %w", err)
	}

	secret := []byte(hex.EncodeToString(raw))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage secret folder: %w", err)
	}

	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write storage secret: %w", err)
	}

	return secret, nil
}

func (s *LocalStorage) PrepareNewFolder(owner, base string) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", ErrInvalidOwner
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate folder name: %w", err)
	}

	folder := filepath.Join(base, s.ownerHash(owner), id.String())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", folder, err)
	}

	return folder, nil
}

func (s *LocalStorage) AllowedToAccess(path, owner string) bool {
	if strings.TrimSpace(owner) == "" || path == "" {
		return false
	}

	hash := s.ownerHash(owner)
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")

	for i, part := range parts {
		if part == ".." {
			return false
		}

		// the owner folder must contain the file, not be the file
		if part == hash && i < len(parts)-1 {
			return true
		}
	}

	return false
}

func (s *LocalStorage) StartAutoclean(folder string, maxAge time.Duration) error {
	if maxAge <= 0 {
		return fmt.Errorf("autoclean max age must be positive, got %s", maxAge)
	}

	interval := max(maxAge/4, time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		s.cron = cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		))
		s.cron.Start()
	}

	_, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.Clean(folder, maxAge)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule autoclean for %s: %w", folder, err)
	}

	s.logger.Info("Scheduled autoclean", "folder", folder, "max_age", maxAge, "interval", interval)

	return nil
}

// Clean removes the folders prepared under folder that were last modified more than
// maxAge ago, and owner folders left empty afterwards.
func (s *LocalStorage) Clean(folder string, maxAge time.Duration) {
	owners, err := os.ReadDir(folder)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Failed to list autoclean folder", "folder", folder, "error", err)
		}

		return
	}

	deadline := time.Now().Add(-maxAge)

	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}

		ownerFolder := filepath.Join(folder, owner.Name())

		entries, err := os.ReadDir(ownerFolder)
		if err != nil {
			s.logger.Error("Failed to list owner folder", "folder", ownerFolder, "error", err)

			continue
		}

		remaining := len(entries)

		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(deadline) {
				continue
			}

			target := filepath.Join(ownerFolder, entry.Name())
			if err := os.RemoveAll(target); err != nil {
				s.logger.Error("Failed to remove expired folder", "folder", target, "error", err)

				continue
			}

			remaining--
			s.logger.Debug("Removed expired folder", "folder", target)
		}

		if remaining == 0 {
			_ = os.Remove(ownerFolder)
		}
	}
}

// Close stops the autoclean jobs and waits for a running one to finish.
func (s *LocalStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}

	return nil
}

func (s *LocalStorage) ownerHash(owner string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(owner))

	return hex.EncodeToString(mac.Sum(nil))
}
