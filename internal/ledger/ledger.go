// Package ledger records which notifications have already been sent so that
// one-shot notifications are not repeated.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/config"
	"github.com/notifyhub/scribe-dispatch/internal/db"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// Ledger is a durable set of DedupKeys.
//
// Exists and Record are independent operations; there is no atomic
// check-and-set, and callers decide the ordering around the send.
// Recording a key that is already present is not an error.
type Ledger interface {
	Exists(ctx context.Context, key domain.DedupKey) (bool, error)
	Record(ctx context.Context, key domain.DedupKey) error
	Close() error
}

// Pinger is implemented by backends with a remote dependency worth probing
// from the status endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open builds the backend selected by cfg.Driver. For postgres the pending
// migrations are applied first when cfg.RunMigrations is set.
func Open(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (Ledger, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		logger.Warn("using in-memory notification ledger; sent markers are lost on restart")
		return NewMemory(), nil

	case "postgres":
		if cfg.RunMigrations {
			if err := db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to PostgreSQL")
		return NewPostgres(pool, true), nil

	case "sqlite":
		l, err := OpenSQLite(ctx, cfg.SQLitePath, cfg.SQLiteBusyTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("opened SQLite ledger", zap.String("path", cfg.SQLitePath))
		return l, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
		return NewRedis(client, cfg.RedisPrefix), nil

	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}
