package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies IPBOND_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known IPBOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "IPBOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "IPBOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "IPBOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "IPBOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "IPBOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "IPBOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "IPBOND_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "IPBOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "IPBOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "IPBOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "IPBOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "IPBOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "IPBOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "IPBOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "IPBOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "IPBOND_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "IPBOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "IPBOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "IPBOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "IPBOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "IPBOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "IPBOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "IPBOND_S3_FORCE_PATH_STYLE")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "IPBOND_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "IPBOND_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.AnchorAddress, "IPBOND_CHAIN_ANCHOR_ADDRESS")
	setUint64(&cfg.Chain.GasLimit, "IPBOND_CHAIN_GAS_LIMIT")
	setStr(&cfg.Chain.PrivateKey, "IPBOND_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "IPBOND_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "IPBOND_CHAIN_KEY_PASSWORD")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "IPBOND_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "IPBOND_ORACLE_API_KEY")
	setDuration(&cfg.Oracle.Timeout, "IPBOND_ORACLE_TIMEOUT")

	// ── Engine ──
	setDuration(&cfg.Engine.SweepInterval, "IPBOND_ENGINE_SWEEP_INTERVAL")
	setInt(&cfg.Engine.ArchiveRetentionDays, "IPBOND_ENGINE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "IPBOND_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "IPBOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "IPBOND_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "IPBOND_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "IPBOND_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "IPBOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "IPBOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "IPBOND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "IPBOND_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "IPBOND_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "IPBOND_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "IPBOND_MODE")
	setStr(&cfg.LogLevel, "IPBOND_LOG_LEVEL")
	setStr(&cfg.BootstrapAdmin, "IPBOND_BOOTSTRAP_ADMIN")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
