package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, 3, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 3, cfg.Credibility.MinSample)
	assert.InDelta(t, 0.5, cfg.Credibility.SuspiciousFalseRatio, 1e-9)
	assert.Contains(t, cfg.RBAC.Roles, "seller")
	assert.Equal(t, []string{"job.created", "post.created"}, cfg.Notify.Events)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 5.0, cfg.Dispatch.RatePerSecond)
	assert.Contains(t, cfg.Permissions([]string{"worker"}), "claim.create")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	data := []byte("ledger:\n  max_attempts: 7\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crowdfill.yml"), data, 0o644))
	t.Setenv("CROWDFILL_SERVER_JWT_SECRET", "s3cret")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Ledger.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.Ledger.RetryBackoffMS)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"postgres needs dsn", func(c *Config) { c.Store.Driver = "postgres" }, "dsn"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "driver"},
		{"sample too small", func(c *Config) { c.Credibility.MinSample = 1 }, "min_sample"},
		{"pubsub half configured", func(c *Config) { c.Notify.PubSub.Topic = "jobs" }, "pubsub"},
		{"webhook without url", func(c *Config) { c.Notify.Webhooks = []WebhookConfig{{}} }, "webhooks[0]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestFromYAMLRoundTripKeepsRoles(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  allow_legacy_actor_header: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Server.AllowLegacyActorHeader)
	assert.Contains(t, cfg.Permissions([]string{"SELLER"}), "job.cancel")

	out, err := cfg.ToYAML()
	require.NoError(t, err)
	again, err := FromYAML(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, again.Server)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
