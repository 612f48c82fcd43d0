package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus(EventBusConfig{Provider: "gochannel"}, nil)
	require.NoError(t, err)
	require.NotNil(t, bus)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus(EventBusConfig{Provider: "nats"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedEventBus)

	_, err = NewEventBus(EventBusConfig{Provider: "kafka"}, nil)
	assert.Error(t, err)
}

func TestNewFileStorage(t *testing.T) {
	folder := t.TempDir()

	first, err := NewFileStorage(folder, nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(folder, secretFileName))

	second, err := NewFileStorage(folder, nil)
	require.NoError(t, err)

	prepared, err := first.PrepareNewFolder("alice", folder)
	require.NoError(t, err)
	assert.True(t, second.AllowedToAccess(filepath.Join(prepared, "out.txt"), "alice"))
}
