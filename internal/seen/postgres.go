package seen

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists seen keys in PostgreSQL for deployments where
// several watchers share one ledger.
type PostgresStore struct {
	pool      Pool
	retention time.Duration
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS seen_incidents (
	key        TEXT PRIMARY KEY,
	first_seen TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seen_incidents_expires_at ON seen_incidents(expires_at);
`

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"seen_contains": `SELECT 1 FROM seen_incidents WHERE key = $1 AND expires_at > now()`,
	"seen_add":      `INSERT INTO seen_incidents (key, first_seen, expires_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET first_seen = EXCLUDED.first_seen, expires_at = EXCLUDED.expires_at`,
	"seen_purge":    `DELETE FROM seen_incidents WHERE expires_at <= now()`,
	"seen_count":    `SELECT COUNT(*) FROM seen_incidents WHERE expires_at > now()`,
}

// NewPostgres connects, migrates and builds the pool. The migration runs
// on a dedicated connection first so per-connection prepares see the
// schema.
func NewPostgres(ctx context.Context, connString string, retention time.Duration) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "seen: connect postgres")
	}
	_, migErr := conn.Exec(ctx, postgresMigration)
	_ = conn.Close(ctx)
	if migErr != nil {
		return nil, eris.Wrap(migErr, "seen: migrate")
	}

	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "seen: parse pool config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "seen: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "seen: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "seen: ping")
	}
	return &PostgresStore{pool: pool, retention: retention}, nil
}

func (s *PostgresStore) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM seen_incidents WHERE key = $1 AND expires_at > now()`,
		key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "seen: contains")
	}
	return true, nil
}

func (s *PostgresStore) Add(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM seen_incidents WHERE expires_at <= now()`); err != nil {
		return eris.Wrap(err, "seen: purge expired")
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seen_incidents (key, first_seen, expires_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET first_seen = EXCLUDED.first_seen, expires_at = EXCLUDED.expires_at`,
		key, now, now.Add(s.retention))
	return eris.Wrap(err, "seen: add")
}

func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM seen_incidents WHERE expires_at > now()`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "seen: len")
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
