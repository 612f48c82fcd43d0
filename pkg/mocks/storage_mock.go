package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/filestage/pkg/storage"
)

// MockFileStorage is a mock implementation of storage.FileStorage interface.
type MockFileStorage struct {
	mock.Mock
}

var _ storage.FileStorage = (*MockFileStorage)(nil)

func (m *MockFileStorage) PrepareNewFolder(owner, base string) (string, error) {
	args := m.Called(owner, base)

	return args.String(0), args.Error(1)
}

func (m *MockFileStorage) AllowedToAccess(path, owner string) bool {
	args := m.Called(path, owner)

	return args.Bool(0)
}

func (m *MockFileStorage) StartAutoclean(folder string, maxAge time.Duration) error {
	args := m.Called(folder, maxAge)

	return args.Error(0)
}
