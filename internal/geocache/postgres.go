package geocache

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fire-incidents/internal/db"
	"github.com/sells-group/fire-incidents/pkg/geocode"
)

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocoded_addresses (
	address    TEXT PRIMARY KEY,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an open pool. The store owns the pool and closes it.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get implements geocode.Cache.
func (s *PostgresStore) Get(ctx context.Context, key string) (geocode.Coordinates, bool, error) {
	var c geocode.Coordinates
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude FROM geocoded_addresses WHERE address = $1`,
		key,
	).Scan(&c.Latitude, &c.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return geocode.Coordinates{}, false, nil
	}
	if err != nil {
		return geocode.Coordinates{}, false, eris.Wrapf(err, "postgres: get %q", key)
	}
	return c, true, nil
}

// Put implements geocode.Cache. Concurrent writers of the same key race
// harmlessly: the first row wins and later inserts are no-ops.
func (s *PostgresStore) Put(ctx context.Context, key string, c geocode.Coordinates) error {
	if !c.Valid() {
		return eris.Errorf("postgres: refusing invalid coordinates for %q", key)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocoded_addresses (address, latitude, longitude) VALUES ($1, $2, $3) ON CONFLICT (address) DO NOTHING`,
		key, c.Latitude, c.Longitude,
	)
	return eris.Wrapf(err, "postgres: put %q", key)
}

// Migrate creates the cache table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
