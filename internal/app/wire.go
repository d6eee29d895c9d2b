package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/polystrat/internal/blob/s3"
	"github.com/alanyoungcy/polystrat/internal/cache/redis"
	"github.com/alanyoungcy/polystrat/internal/config"
	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/notify"
	"github.com/alanyoungcy/polystrat/internal/server"
	"github.com/alanyoungcy/polystrat/internal/store/postgres"
	"github.com/alanyoungcy/polystrat/internal/store/sqlite"
)

// Dependencies bundles the infrastructure the modes need. Every field is
// optional; a nil field means the feature is not configured.
type Dependencies struct {
	// Records persists what the event sink drains.
	Records domain.RecordStore
	// History reads the same store back.
	History domain.TradeHistory

	Locks   domain.LockManager
	Signals *redis.SignalBus
	States  domain.StateCache

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier

	Checks map[string]server.HealthCheck
}

// needsRecords returns true for modes that read or write the record store.
func needsRecords(mode string) bool {
	switch mode {
	case config.ModePaper, config.ModeLive, config.ModeReport, config.ModeArchive:
		return true
	default:
		return false
	}
}

// Wire constructs the concrete infrastructure for cfg and returns it
// together with a cleanup function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]server.HealthCheck)}
	mode := strings.ToLower(cfg.Mode)

	// --- Record store ---
	if needsRecords(mode) {
		switch strings.ToLower(cfg.Store.Backend) {
		case config.StorePostgres:
			pg := cfg.Store.Postgres
			pgClient, err := postgres.New(ctx, postgres.ClientConfig{
				DSN:      pg.DSN,
				Host:     pg.Host,
				Port:     pg.Port,
				Database: pg.Database,
				User:     pg.User,
				Password: pg.Password,
				SSLMode:  pg.SSLMode,
				MaxConns: pg.PoolMaxConns,
				MinConns: pg.PoolMinConns,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres: %w", err)
			}
			closers = append(closers, pgClient.Close)

			if pg.RunMigrations {
				if err := pgClient.RunMigrations(ctx); err != nil {
					cleanup()
					return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
				}
			}

			store := postgres.NewRecordStore(pgClient.Pool())
			deps.Records, deps.History = store, store
			deps.Checks["postgres"] = func(ctx context.Context) error { return pgClient.Pool().Ping(ctx) }

		case config.StoreSQLite:
			store, err := sqlite.Open(cfg.Store.SQLitePath)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
			}
			closers = append(closers, func() { _ = store.Close() })
			deps.Records, deps.History = store, store
			deps.Checks["sqlite"] = store.Ping
		}
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
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

		deps.Signals = redis.NewSignalBus(redisClient)
		deps.States = redis.NewStateCache(redisClient, cfg.Redis.StateTTL.Duration)
		if cfg.Redis.Lock {
			deps.Locks = redis.NewLockManager(redisClient)
		}
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 (archive only) ---
	if mode == config.ModeArchive {
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
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
