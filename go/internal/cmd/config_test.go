package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, storePostgres, cfg.Store)
	assert.Equal(t, relayNone, cfg.Relay.Kind)
	assert.Equal(t, 5*time.Minute, cfg.Auction.BiddingWindow)
	assert.Equal(t, 15*time.Second, cfg.Auction.AntiSnipeWindow)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
}

func TestLoadConfigFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
store: memory
jwt_secret: from-file
auction:
  bidding_window: 2m
  anti_snipe_window: 10s
scheduler:
  workers: 8
relay:
  kind: redis
  redis_addr: localhost:6379
`), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, storeMemory, cfg.Store)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 2*time.Minute, cfg.Auction.BiddingWindow)
	assert.Equal(t, 10*time.Second, cfg.Auction.AntiSnipeWindow)
	assert.Equal(t, 15*time.Second, cfg.Auction.AntiSnipeExtension)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, relayRedis, cfg.Relay.Kind)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "unknown store", env: map[string]string{"JWT_SECRET": "x", "STORE": "mongo"}},
		{name: "nats without url", env: map[string]string{"JWT_SECRET": "x", "RELAY": "nats"}},
		{name: "unknown relay", env: map[string]string{"JWT_SECRET": "x", "RELAY": "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"JWT_SECRET", "STORE", "RELAY", "NATS_URL"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig("")
			assert.Error(t, err)
		})
	}
}
