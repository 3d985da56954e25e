// Package seen tracks which incidents have already been dispatched so a
// record is announced at most once per retention window.
package seen

import "context"

// Store is the dedup ledger keyed by incident identity fingerprint.
// Implementations are safe for concurrent use.
type Store interface {
	// Contains reports whether key was marked within the retention window.
	Contains(ctx context.Context, key string) (bool, error)
	// Add marks key as dispatched. Re-adding refreshes its window.
	Add(ctx context.Context, key string) error
	// Len counts unexpired entries.
	Len(ctx context.Context) (int, error)
	Close() error
}
