// internal/repository/memory_store.go
package repository

import (
	"context"
	"sort"
	"sync"
)

// memoryStore keeps records in process memory. It is used for tests and for
// terminals configured without a local database.
type memoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

// NewMemoryStore creates an empty in-memory durable store
func NewMemoryStore() DurableStore {
	return &memoryStore{
		collections: make(map[string]map[string]Record),
	}
}

func (s *memoryStore) Put(ctx context.Context, collection string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Record)
		s.collections[collection] = coll
	}
	coll[rec.Key] = copyRecord(rec)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyRecord(rec)
	return &out, nil
}

func (s *memoryStore) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], key)
	return nil
}

func (s *memoryStore) Scan(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []Record{}
	for _, rec := range s.collections[collection] {
		if filter.Matches(rec) {
			records = append(records, copyRecord(rec))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *memoryStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.collections[collection] {
		if filter.Matches(rec) {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) ReplaceAll(ctx context.Context, collection string, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	coll := make(map[string]Record, len(recs))
	for _, rec := range recs {
		coll[rec.Key] = copyRecord(rec)
	}

	s.mu.Lock()
	s.collections[collection] = coll
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *memoryStore) Close() error {
	return nil
}

func copyRecord(rec Record) Record {
	out := Record{
		Key:   rec.Key,
		Value: append([]byte(nil), rec.Value...),
	}
	if rec.Indexes != nil {
		out.Indexes = make(map[string]string, len(rec.Indexes))
		for k, v := range rec.Indexes {
			out.Indexes[k] = v
		}
	}
	return out
}
