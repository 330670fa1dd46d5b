// internal/lease/lease.go
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease grants exclusive ownership of the sync queue of one store. Only the
// holder may drain orders; every other engine skips its cycles.
type Lease interface {
	// Acquire takes or extends ownership for ttl and reports whether this
	// holder owns the lease afterwards.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	// Release gives up ownership if this holder still has it
	Release(ctx context.Context) error
	// Owner returns this holder's token
	Owner() string
}

type memoryEntry struct {
	owner   string
	expires time.Time
}

// MemoryRegistry is a process-local lease table. Engines sharing one
// registry compete for the same keys.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Lease returns a new holder for key with its own owner token
func (r *MemoryRegistry) Lease(key string) Lease {
	return &memoryLease{
		registry: r,
		key:      key,
		owner:    uuid.NewString(),
	}
}

type memoryLease struct {
	registry *MemoryRegistry
	key      string
	owner    string
}

func (l *memoryLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[l.key]
	if ok && entry.owner != l.owner && now.Before(entry.expires) {
		return false, nil
	}
	r.entries[l.key] = memoryEntry{owner: l.owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *memoryLease) Release(ctx context.Context) error {
	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[l.key]; ok && entry.owner == l.owner {
		delete(r.entries, l.key)
	}
	return nil
}

func (l *memoryLease) Owner() string {
	return l.owner
}
