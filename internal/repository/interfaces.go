// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStorage wraps every failure of the local durable store. A sale that
	// fails with ErrStorage was not recorded and must be reported to the cashier.
	ErrStorage = errors.New("local storage error")
)

// Collections of the local persistence schema
const (
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
	CollectionOrders    = "orders"
)

// IndexSynced is the secondary index used for unsynced-queue scans
const IndexSynced = "synced"

// Record is one encoded value in a collection. Indexes carries secondary
// index values that backends may use to narrow scans.
type Record struct {
	Key     string            `json:"key"`
	Value   []byte            `json:"value"`
	Indexes map[string]string `json:"indexes,omitempty"`
}

// Filter narrows a scan. Index/Value select on a secondary index when both
// are set; Predicate is applied on top of that.
type Filter struct {
	Index     string
	Value     string
	Predicate func(Record) bool
}

// Matches reports whether the record passes the filter
func (f Filter) Matches(rec Record) bool {
	if f.Index != "" && rec.Indexes[f.Index] != f.Value {
		return false
	}
	if f.Predicate != nil && !f.Predicate(rec) {
		return false
	}
	return true
}

// DurableStore is the transactional key-value engine under the local store.
// Every Put replaces one whole record atomically; readers observe either
// the previous or the new value, never a mix.
type DurableStore interface {
	Put(ctx context.Context, collection string, rec Record) error
	Get(ctx context.Context, collection, key string) (*Record, error)
	// Delete removes the record; deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error
	Scan(ctx context.Context, collection string, filter Filter) ([]Record, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	// ReplaceAll swaps the whole collection in one transaction.
	ReplaceAll(ctx context.Context, collection string, recs []Record) error
	Ping(ctx context.Context) error
	Close() error
}
