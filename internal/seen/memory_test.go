package seen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*MemoryStore)(nil)

func TestMemoryStore_AddContains(t *testing.T) {
	s := NewMemory(time.Hour)
	defer s.Close()
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

func TestMemoryStore_Len(t *testing.T) {
	s := NewMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Add(ctx, "k1"))
	require.NoError(t, s.Add(ctx, "k2"))
	require.NoError(t, s.Add(ctx, "k1")) // re-add is not a new entry

	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemory(30 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "k1"))
	time.Sleep(100 * time.Millisecond)

	ok, err := s.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ReAddRefreshesWindow(t *testing.T) {
	s := NewMemory(200 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "k1"))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, s.Add(ctx, "k1"))
	time.Sleep(120 * time.Millisecond)

	// 240ms after the first add, 120ms after the refresh.
	ok, err := s.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}
