package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cortezalberto/coderunner1/internal/config"
)

// ErrNotFound is returned when a key has no value
var ErrNotFound = errors.New("key not found")

// Store defines the key-value capability used for local persistence.
// The persistence medium is swappable without touching callers.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by the configuration
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Path)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case "postgres":
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:          cfg.Database.DSN,
			Table:        cfg.Database.Table,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		})
	case "sqlite":
		return NewSQLiteStore(cfg.Path, cfg.Database.Table)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
