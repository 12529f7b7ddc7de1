package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DARWIN_HOST", "DARWIN_PORT", "DARWIN_USER", "DARWIN_PASS", "DARWIN_TOPIC",
		"HSP_URL", "HSP_USER", "HSP_PASS",
		"MASPHD_DB_PATH", "MASPHD_MODELS_DIR", "MASPHD_STATIONS_CSV",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 61613, cfg.Darwin.Port)
	assert.Equal(t, 15*time.Second, cfg.Darwin.ReconnectWait())
	assert.Equal(t, 15000*time.Millisecond, cfg.Darwin.Heartbeat())
	assert.Equal(t, 25*time.Second, cfg.HSP.Timeout())
	assert.Equal(t, "data/realtime.sqlite3", cfg.Store.Path)
	assert.Equal(t, 5000, cfg.Store.QueueSize)
	assert.Equal(t, "models", cfg.Models.Dir)
	assert.Equal(t, "ensemble_weights.json", cfg.Models.WeightsFile)
	assert.Equal(t, "data/stations.csv", cfg.Stations.CSV)
	assert.Equal(t, 500, cfg.Realtime.CacheSize)
	assert.True(t, cfg.Realtime.PrintPredictions)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
darwin:
  host: darwin.example.net
  port: 61617
  topic: /topic/darwin.pushport-v16
store:
  path: /var/lib/masphd/realtime.sqlite3
realtime:
  print_predictions: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "darwin.example.net", cfg.Darwin.Host)
	assert.Equal(t, 61617, cfg.Darwin.Port)
	assert.Equal(t, "/topic/darwin.pushport-v16", cfg.Darwin.Topic)
	assert.Equal(t, "/var/lib/masphd/realtime.sqlite3", cfg.Store.Path)
	assert.False(t, cfg.Realtime.PrintPredictions)
	// untouched sections keep their defaults
	assert.Equal(t, 5000, cfg.Store.QueueSize)
	assert.Equal(t, 25, cfg.HSP.TimeoutS)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
darwin:
  host: from-file.example.net
  port: 61613
`), 0o644))

	t.Setenv("DARWIN_HOST", "from-env.example.net")
	t.Setenv("DARWIN_PORT", "61617")
	t.Setenv("DARWIN_USER", "alice")
	t.Setenv("DARWIN_PASS", "secret")
	t.Setenv("MASPHD_DB_PATH", "/tmp/override.sqlite3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.example.net", cfg.Darwin.Host)
	assert.Equal(t, 61617, cfg.Darwin.Port)
	assert.Equal(t, "alice", cfg.Darwin.Username)
	assert.Equal(t, "secret", cfg.Darwin.Password)
	assert.Equal(t, "/tmp/override.sqlite3", cfg.Store.Path)
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("darwin: [not: a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateRealtimeNamesMissingKeys(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateRealtime()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "darwin.host (DARWIN_HOST)")
	assert.Contains(t, err.Error(), "darwin.topic (DARWIN_TOPIC)")
	assert.Contains(t, err.Error(), "DARWIN_USER")
	assert.Contains(t, err.Error(), "DARWIN_PASS")

	cfg.Darwin.Host = "h"
	cfg.Darwin.Topic = "t"
	cfg.Darwin.Username = "u"
	cfg.Darwin.Password = "p"
	assert.NoError(t, cfg.ValidateRealtime())
}

func TestValidateEnrichNamesMissingKeys(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateEnrich()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsp.url (HSP_URL)")
	assert.Contains(t, err.Error(), "HSP_USER")
	assert.Contains(t, err.Error(), "HSP_PASS")

	cfg.HSP.URL = "https://hsp.example.net"
	cfg.HSP.Username = "u"
	cfg.HSP.Password = "p"
	assert.NoError(t, cfg.ValidateEnrich())
}
