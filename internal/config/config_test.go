package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "serve"
log_level = "debug"

[server]
port = 9100
rate_limit = 30
rate_limit_window = "30s"

[postgres]
host = "db.internal"
database = "bonds"

[oracle]
base_url = "http://oracle.internal:8080"
timeout = "10s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "bonds", cfg.Postgres.Database)
	assert.Equal(t, 10*time.Second, cfg.Oracle.Timeout.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 90, cfg.Engine.ArchiveRetentionDays)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IPBOND_POSTGRES_DSN", "postgres://u:p@db/bonds")
	t.Setenv("IPBOND_SERVER_PORT", "9200")
	t.Setenv("IPBOND_ENGINE_SWEEP_INTERVAL", "15s")
	t.Setenv("IPBOND_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("IPBOND_BOOTSTRAP_ADMIN", "0xops")

	path := writeConfig(t, `mode = "full"`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db/bonds", cfg.Postgres.DSN)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Engine.SweepInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "0xops", cfg.BootstrapAdmin)
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Server.Port = 0
	cfg.Engine.SweepInterval.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "server: port")
	assert.Contains(t, err.Error(), "sweep_interval")
}

func TestValidateChainRequiresKey(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://rpc.example"
	cfg.Chain.ChainID = 8453
	cfg.Chain.AnchorAddress = "0x1111111111111111111111111111111111111111"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Chain.EncryptedKeyPath = "/etc/ipbond/key.json"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")

	cfg.Chain.KeyPassword = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.Chain.PrivateKey = "deadbeef"
	cfg.Notify.WebhookSecret = "whsec"
	cfg.Server.APIKeys = map[string]string{"key-1": "issuer-1"}

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Chain.PrivateKey)
	assert.Equal(t, "***", red.Notify.WebhookSecret)
	assert.Nil(t, red.Server.APIKeys)

	// The original is untouched.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
	assert.Equal(t, map[string]string{"key-1": "issuer-1"}, cfg.Server.APIKeys)
}
