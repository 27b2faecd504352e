// Package geocache persists normalized address to coordinate mappings for the
// geocode resolver. Entries are written once and never updated.
package geocache

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/config"
	"github.com/sells-group/fire-incidents/internal/db"
	"github.com/sells-group/fire-incidents/pkg/geocode"
)

// TableName is the table (or collection) holding cached coordinates.
const TableName = "geocoded_addresses"

// Store is a geocode.Cache with a lifecycle.
type Store interface {
	geocode.Cache
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
		if err != nil {
			return nil, eris.Wrap(err, "geocache: open postgres")
		}
		return NewPostgres(pool), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "mongo":
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, eris.Errorf("geocache: unknown driver %q", cfg.Driver)
	}
}

func poolConfig(cfg config.CacheConfig) *db.PoolConfig {
	return &db.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns}
}

// OpenMigrated opens the configured store and runs its migration. Callers
// that want the service to run without a durable cache can fall back to
// NewMemory on error.
func OpenMigrated(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	st, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("geocode cache ready", zap.String("driver", cfg.Driver))
	return st, nil
}
