package seen

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*SQLiteStore)(nil)

func newTestSQLite(t *testing.T, retention time.Duration) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seen.db")
	s, err := NewSQLite(context.Background(), path, retention)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteStore_AddContains(t *testing.T) {
	s, _ := newTestSQLite(t, time.Hour)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "k1"))

	ok, err = s.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_Len(t *testing.T) {
	s, _ := newTestSQLite(t, time.Hour)
	ctx := context.Background()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Add(ctx, "k1"))
	require.NoError(t, s.Add(ctx, "k2"))
	require.NoError(t, s.Add(ctx, "k1"))

	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.db")

	s, err := NewSQLite(ctx, path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, "k1"))
	require.NoError(t, s.Close())

	s2, err := NewSQLite(ctx, path, time.Hour)
	require.NoError(t, err)
	defer s2.Close()

	ok, err := s2.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteStore_Expiry(t *testing.T) {
	s, _ := newTestSQLite(t, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "k1"))
	time.Sleep(60 * time.Millisecond)

	ok, err := s.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteStore_PurgesExpiredOnAdd(t *testing.T) {
	s, _ := newTestSQLite(t, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "old"))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Add(ctx, "new"))

	// The expired row should be gone from the table, not just filtered out.
	var total int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_incidents`).Scan(&total))
	assert.Equal(t, 1, total)
}
