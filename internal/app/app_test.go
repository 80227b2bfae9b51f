package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fsec/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DataDir:           dir,
		DownloadDir:       filepath.Join(dir, "downloads"),
		OutputDir:         filepath.Join(dir, "out"),
		AliasMapPath:      filepath.Join(dir, "aliases.yaml"),
		UnknownPath:       filepath.Join(dir, "unknown.yaml"),
		DownloadLog:       filepath.Join(dir, "download_log.yaml"),
		SchemaPath:        filepath.Join(dir, "schema.yaml"),
		RegistryBackend:   "yaml",
		RegistryPath:      filepath.Join(dir, "operators.yaml"),
		MatchMinLen:       3,
		MatchMaxLen:       35,
		MatchMinScore:     90,
		MatchAliasScore:   75,
		HeaderSensitivity: 2,
		HeaderSpecificity: 2,
		ExcludeTokens:     config.DefaultExcludeTokens(),
		MergePolicy:       "first",
		StorageDriver:     "sqlite",
		StorageDSN:        filepath.Join(dir, "fsec.db"),
		Sinks:             []string{"xlsx", "parquet", "db"},
		LogLevel:          "info",
		LogFormat:         "console",
		WatchIntervalSec:  1,
	}
}

func TestWatcherEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, os.MkdirAll(cfg.DownloadDir, 0o755))
	csv := "Operator,Well Name,API14,Frac Start Date\nHalcyon Resources,Smith 1H,42329000010000,2024-01-10\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DownloadDir, "halcyon_january.csv"), []byte(csv), 0o644))

	w, err := a.Watcher()
	require.NoError(t, err)
	n, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, name := range []string{"halcyon_january.xlsx", "halcyon_january.parquet"} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(cfg.RegistryPath)
	assert.NoError(t, err, "registry is saved at batch end")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.RegistryBackend = "mongo"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "invalid config")
}

func TestWithOutputDirSkipsUnconfiguredSinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks = []string{"db"}
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.sinks(cfg.OutputDir), 1)
}
