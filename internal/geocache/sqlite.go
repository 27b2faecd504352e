package geocache

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fire-incidents/pkg/geocode"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocoded_addresses (
	address    TEXT PRIMARY KEY,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: path is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements geocode.Cache.
func (s *SQLiteStore) Get(ctx context.Context, key string) (geocode.Coordinates, bool, error) {
	var c geocode.Coordinates
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM geocoded_addresses WHERE address = ?`,
		key,
	).Scan(&c.Latitude, &c.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return geocode.Coordinates{}, false, nil
	}
	if err != nil {
		return geocode.Coordinates{}, false, eris.Wrapf(err, "sqlite: get %q", key)
	}
	return c, true, nil
}

// Put implements geocode.Cache.
func (s *SQLiteStore) Put(ctx context.Context, key string, c geocode.Coordinates) error {
	if !c.Valid() {
		return eris.Errorf("sqlite: refusing invalid coordinates for %q", key)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocoded_addresses (address, latitude, longitude) VALUES (?, ?, ?) ON CONFLICT (address) DO NOTHING`,
		key, c.Latitude, c.Longitude,
	)
	return eris.Wrapf(err, "sqlite: put %q", key)
}

// Migrate creates the cache table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
