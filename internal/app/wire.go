package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/knowton/ipbond/internal/blob/s3"
	"github.com/knowton/ipbond/internal/cache/redis"
	"github.com/knowton/ipbond/internal/chain"
	"github.com/knowton/ipbond/internal/config"
	"github.com/knowton/ipbond/internal/crypto"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/notify"
	"github.com/knowton/ipbond/internal/oracle"
	"github.com/knowton/ipbond/internal/risk"
	"github.com/knowton/ipbond/internal/store/memory"
	"github.com/knowton/ipbond/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Ledger domain.LedgerStore
	Roles  domain.RoleStore
	Risks  domain.RiskStore
	Audit  domain.AuditStore

	// Coordination and caching
	Locks       domain.LockManager
	Pause       domain.PauseSwitch
	SignalBus   domain.SignalBus
	Valuations  domain.ValuationCache
	RateLimiter domain.RateLimiter

	// Blob storage (nil unless S3 is configured)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Risk scoring
	RiskEngine *risk.Engine

	// Notifications and anchoring (Anchor nil unless chain is configured)
	Notifier *notify.Notifier
	Anchor   *chain.Anchor
}

// usesPostgres reports whether the configuration points at a database. With
// neither a DSN nor a host the engine runs entirely on in-memory stores,
// which is only useful for local development.
func usesPostgres(cfg *config.Config) bool {
	return cfg.Postgres.DSN != "" || cfg.Postgres.Host != ""
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger, roles, risk, audit: PostgreSQL or in-memory ---
	if usesPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedger(pool)
		deps.Roles = postgres.NewRoleStore(pool)
		deps.Risks = postgres.NewRiskStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	} else {
		logger.Warn("wire: no postgres configured, using in-memory stores")
		deps.Ledger = memory.NewLedger()
		deps.Roles = memory.NewRoleStore()
		deps.Risks = memory.NewRiskStore()
		deps.Audit = memory.NewAuditStore()
	}

	// Seed the first admin so a fresh deployment can grant issuer roles
	// through the API. Grant is idempotent across restarts.
	if cfg.BootstrapAdmin != "" {
		if err := deps.Roles.Grant(ctx, cfg.BootstrapAdmin, domain.RoleAdmin); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: bootstrap admin %s: %w", cfg.BootstrapAdmin, err)
		}
		logger.Info("wire: bootstrap admin granted", slog.String("identity", cfg.BootstrapAdmin))
	}

	// --- Locks, events, pause, rate limiting, valuation cache: Redis or in-process ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Pause = redis.NewPauseSwitch(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Valuations = redis.NewValuationCache(redisClient)
	} else {
		logger.Warn("wire: no redis configured, locks and events are in-process only")
		deps.Locks = memory.NewLockManager()
		deps.Pause = memory.NewPauseSwitch()
		deps.SignalBus = memory.NewSignalBus()
		deps.RateLimiter = memory.NewRateLimiter()
		deps.Valuations = memory.NewValuationCache()
	}

	// --- S3 blob storage for archives ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Ledger, deps.Audit)
	}

	// --- Risk engine, with the valuation oracle when configured ---
	var valuer risk.Valuer
	if cfg.Oracle.BaseURL != "" {
		valuer = oracle.New(oracle.ClientConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Timeout: cfg.Oracle.Timeout.Duration,
		})
	}
	deps.RiskEngine = risk.New(valuer, deps.Valuations, nil, logger)

	// --- On-chain anchoring ---
	if cfg.Chain.RPCURL != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load anchor key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: anchor signer: %w", err)
		}
		anchor, err := chain.New(ctx, chain.Config{
			RPCURL:        cfg.Chain.RPCURL,
			ChainID:       cfg.Chain.ChainID,
			AnchorAddress: cfg.Chain.AnchorAddress,
			GasLimit:      cfg.Chain.GasLimit,
		}, signer, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain anchor: %w", err)
		}
		closers = append(closers, anchor.Close)
		deps.Anchor = anchor
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
