package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlgate-mcp/internal/config"
)

func TestManager_unknownConnection(t *testing.T) {
	m := NewManager(config.NewStatic(nil))
	defer m.Close()

	_, err := m.Driver(context.Background(), "nope")
	assert.ErrorContains(t, err, "unknown connection")
}

func TestManager_unsupportedType(t *testing.T) {
	m := NewManager(config.NewStatic(map[string]config.Connection{
		"weird": {Type: "oracle", URI: "oracle://x"},
	}))
	defer m.Close()

	_, err := m.Driver(context.Background(), "weird")
	assert.ErrorContains(t, err, "unsupported connection type")
}

func TestManager_cachesDrivers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mgr_test.db")
	m := NewManager(config.NewStatic(map[string]config.Connection{
		"local": {Type: "sqlite", URI: path},
	}))
	defer m.Close()

	ctx := context.Background()
	d1, err := m.Driver(ctx, "local")
	require.NoError(t, err)
	d2, err := m.Driver(ctx, "local")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
}
