package seen

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists seen keys in a local SQLite file so restarts do
// not re-announce incidents.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS seen_incidents (
	key        TEXT PRIMARY KEY,
	first_seen DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seen_incidents_expires_at ON seen_incidents(expires_at);
`

// NewSQLite opens the database at path (creating it if needed),
// configures WAL mode and runs the migration.
func NewSQLite(ctx context.Context, path string, retention time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "seen: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "seen: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "seen: migrate")
	}
	return &SQLiteStore{db: db, retention: retention}, nil
}

func (s *SQLiteStore) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_incidents WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "seen: contains")
	}
	return true, nil
}

func (s *SQLiteStore) Add(ctx context.Context, key string) error {
	now := time.Now().UTC()
	// Piggyback expiry cleanup on the write path; adds are rare.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_incidents WHERE expires_at <= ?`, now); err != nil {
		return eris.Wrap(err, "seen: purge expired")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_incidents (key, first_seen, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET first_seen = excluded.first_seen, expires_at = excluded.expires_at`,
		key, now, now.Add(s.retention))
	return eris.Wrap(err, "seen: add")
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_incidents WHERE expires_at > ?`,
		time.Now().UTC()).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "seen: len")
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
