package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	resetSingleton()
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesYAMLAndExpandsEnv(t *testing.T) {
	resetSingleton()
	t.Setenv("SMOLDB_TEST_ADDR", "10.0.0.1:9000")

	path := filepath.Join(t.TempDir(), "config.yml")
	contents := "ADDR: \"${SMOLDB_TEST_ADDR}\"\nDATA_DIR: /var/lib/smoldb\nSTORAGE_KIND: alt\nLOG_SIZE_THRESHOLD: 2048\nPOOL_SIZE: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "/var/lib/smoldb", cfg.DataDir)
	assert.Equal(t, StorageAlt, cfg.StorageKind)
	assert.EqualValues(t, 2048, cfg.LogSizeThreshold)
	assert.Equal(t, 8, cfg.PoolSize)
}

func TestGetPanicsBeforeLoad(t *testing.T) {
	resetSingleton()
	assert.Panics(t, func() { Get() })
}

// resetSingleton undoes the sync.Once guard between tests; Load is
// documented as a process-lifetime singleton, but tests need to exercise
// it with different inputs.
func resetSingleton() {
	once = sync.Once{}
	appConfig = nil
	initErr = nil
}
