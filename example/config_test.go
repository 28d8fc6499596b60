package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:12345", cfg.Address)
	assert.Equal(t, 100*time.Millisecond, cfg.Keepalive.InitialDelay)
	assert.Equal(t, time.Second, cfg.Keepalive.Period)
	assert.Equal(t, 5*time.Second, cfg.PeerTimeout)
	assert.Equal(t, 1024, cfg.MaxDatagramSize)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfig_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: 0.0.0.0:9000\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Address)
	assert.Equal(t, time.Second, cfg.Keepalive.Period, "unset fields keep their defaults")
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keepalive: [oops"), 0o600))

	_, err := loadConfig(path)
	assert.Error(t, err)
}
