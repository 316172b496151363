package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "file", cfg.Store.Backend)
	require.Equal(t, 32, cfg.Store.NodeCount)
	require.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treedb.json")
	err := os.WriteFile(path, []byte(`{"store":{"backend":"mmap","node_count":8},"logger":{"level":"debug"}}`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "mmap", cfg.Store.Backend)
	require.Equal(t, 8, cfg.Store.NodeCount)
	require.Equal(t, 256, cfg.Store.Increment)
	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, 3, cfg.Logger.MaxBackups)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
