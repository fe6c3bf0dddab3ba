package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PRODTRACK_DB", "PRODTRACK_ADDR", "PRODTRACK_LOCK_TTL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.DBPath, ".prodtrack")
	assert.Equal(t, "127.0.0.1:12345", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PRODTRACK_DB", "/tmp/prodtrack-test.db")
	t.Setenv("PRODTRACK_ADDR", "127.0.0.1:9000")
	t.Setenv("PRODTRACK_LOCK_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/prodtrack-test.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.LockTTL)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("PRODTRACK_LOCK_TTL", "soon")
	_, err := Load()
	assert.Error(t, err)
}
