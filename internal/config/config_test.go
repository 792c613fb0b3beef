package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "/ws/frame", cfg.Server.FramePath)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.Channel.WaitTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Store.CacheTTL())
	assert.Equal(t, 10, cfg.Actions.BackgroundWorkers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadWithCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.json")
	content := `{
	// frame side
	"server": {
		"host": "127.0.0.1",
		"port": 9090,
		"listen_addr": "",
		"frame_path": "/ws/child",
		"allowed_origins": ["https://example.lightning.force.com",],
	},
	/* cache storable actions for a minute */
	"store": {"cache_ttl_seconds": 60},
	"channel": {"wait_timeout_ms": 2500},
	"actions": {"background_workers": 0},
	"log": {"level": "debug", "development": true},
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.ListenAddr)
	assert.Equal(t, "/ws/child", cfg.Server.FramePath)
	assert.Equal(t, []string{"https://example.lightning.force.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.Store.CacheTTL())
	assert.Equal(t, 2500*time.Millisecond, cfg.Channel.WaitTimeout())
	assert.Equal(t, 10, cfg.Actions.BackgroundWorkers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read config failed")

	_, err = Parse([]byte(`{"server": `))
	assert.ErrorContains(t, err, "parse config failed")

	_, err = Parse([]byte(`{"server": []}`))
	assert.ErrorContains(t, err, "parse config failed")
}
