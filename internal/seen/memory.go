package seen

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps seen keys in process memory with TTL eviction. State
// is lost on restart, so a fresh process may re-announce recent incidents.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemory creates a memory store whose entries expire after retention.
func NewMemory(retention time.Duration) *MemoryStore {
	cleanup := retention / 4
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &MemoryStore{cache: gocache.New(retention, cleanup)}
}

func (s *MemoryStore) Contains(_ context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(key)
	return ok, nil
}

func (s *MemoryStore) Add(_ context.Context, key string) error {
	s.cache.SetDefault(key, time.Now().UTC())
	return nil
}

// Len may briefly count expired entries the janitor has not collected yet.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	return s.cache.ItemCount(), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
