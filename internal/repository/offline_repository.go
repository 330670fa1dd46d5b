// internal/repository/offline_repository.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-sync-service/internal/model"
)

// LocalStore is the local durable store of the terminal: cached catalog data
// and the authoritative record of offline orders with their sync state.
type LocalStore struct {
	store  DurableStore
	logger *zap.Logger

	// writeMu serialises read-modify-write updates of a single order so the
	// synced flag can only move from false to true.
	writeMu sync.Mutex
}

// NewLocalStore creates a local store on top of a durable backend
func NewLocalStore(store DurableStore, logger *zap.Logger) *LocalStore {
	return &LocalStore{
		store:  store,
		logger: logger,
	}
}

// PutOrder inserts or overwrites an order by id. The whole order is encoded
// and written as one record.
func (s *LocalStore) PutOrder(ctx context.Context, order *model.OfflineOrder) error {
	if order == nil {
		return fmt.Errorf("%w: order is nil", model.ErrInvalidOrder)
	}
	if err := order.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.getOrder(ctx, order.ID)
	switch {
	case err == nil:
		if existing.Synced && !order.Synced {
			return fmt.Errorf("%w: order %s is already synced", model.ErrInvalidOrder, order.ID)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	return s.writeOrder(ctx, order)
}

// GetOrder returns a single order
func (s *LocalStore) GetOrder(ctx context.Context, id string) (*model.OfflineOrder, error) {
	return s.getOrder(ctx, id)
}

// GetUnsyncedOrders returns every order not yet acknowledged by the back
// office, oldest first.
func (s *LocalStore) GetUnsyncedOrders(ctx context.Context) ([]*model.OfflineOrder, error) {
	records, err := s.store.Scan(ctx, CollectionOrders, unsyncedFilter())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan unsynced orders: %w", ErrStorage, err)
	}
	return decodeOrders(records)
}

// GetAllOrders returns every local order, oldest first
func (s *LocalStore) GetAllOrders(ctx context.Context) ([]*model.OfflineOrder, error) {
	records, err := s.store.Scan(ctx, CollectionOrders, Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan orders: %w", ErrStorage, err)
	}
	return decodeOrders(records)
}

// CountUnsyncedOrders returns the length of the sync queue
func (s *LocalStore) CountUnsyncedOrders(ctx context.Context) (int, error) {
	count, err := s.store.Count(ctx, CollectionOrders, unsyncedFilter())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count unsynced orders: %w", ErrStorage, err)
	}
	return count, nil
}

// DeleteOrder removes an order. Deleting an unknown id is a no-op.
func (s *LocalStore) DeleteOrder(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Delete(ctx, CollectionOrders, id); err != nil {
		return fmt.Errorf("%w: failed to delete order %s: %w", ErrStorage, id, err)
	}
	return nil
}

// MarkSynced flags the order as acknowledged by the back office. Marking an
// already synced order again is harmless.
func (s *LocalStore) MarkSynced(ctx context.Context, id string, receipt model.SyncReceipt) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Synced {
		return nil
	}

	now := time.Now().UTC()
	order.Synced = true
	order.SyncedAt = &now
	order.LastSyncAttempt = &now
	order.SyncAttempts++
	order.SyncError = nil
	if receipt.OrderID != "" {
		serverID := receipt.OrderID
		order.ServerOrderID = &serverID
	}
	if receipt.OrderNumber != "" {
		serverNumber := receipt.OrderNumber
		order.ServerOrderNumber = &serverNumber
	}

	return s.writeOrder(ctx, order)
}

// RecordSyncFailure attaches the failure to an unsynced order for
// diagnostics. Synced orders are left untouched.
func (s *LocalStore) RecordSyncFailure(ctx context.Context, id string, cause error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Synced {
		return nil
	}

	now := time.Now().UTC()
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	order.SyncAttempts++
	order.LastSyncAttempt = &now
	order.SyncError = &message

	return s.writeOrder(ctx, order)
}

// PurgeSyncedBefore removes synced orders confirmed before the cutoff and
// returns how many were removed.
func (s *LocalStore) PurgeSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.store.Scan(ctx, CollectionOrders, Filter{Index: IndexSynced, Value: strconv.FormatBool(true)})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to scan synced orders: %w", ErrStorage, err)
	}

	var removed int64
	for _, rec := range records {
		var order model.OfflineOrder
		if err := json.Unmarshal(rec.Value, &order); err != nil {
			s.logger.Error("Failed to decode synced order", zap.String("key", rec.Key), zap.Error(err))
			continue
		}
		if order.SyncedAt == nil || !order.SyncedAt.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, CollectionOrders, rec.Key); err != nil {
			return removed, fmt.Errorf("%w: failed to purge order %s: %w", ErrStorage, rec.Key, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Purged synced orders", zap.Int64("count", removed))
	}
	return removed, nil
}

// GetStorageInfo returns record counts per collection. Orders counts the
// unsynced queue; retained synced orders are reported separately.
func (s *LocalStore) GetStorageInfo(ctx context.Context) (*model.StorageInfo, error) {
	products, err := s.store.Count(ctx, CollectionProducts, Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count products: %w", ErrStorage, err)
	}
	customers, err := s.store.Count(ctx, CollectionCustomers, Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count customers: %w", ErrStorage, err)
	}
	unsynced, err := s.store.Count(ctx, CollectionOrders, unsyncedFilter())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count orders: %w", ErrStorage, err)
	}
	synced, err := s.store.Count(ctx, CollectionOrders, Filter{Index: IndexSynced, Value: strconv.FormatBool(true)})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count synced orders: %w", ErrStorage, err)
	}

	return &model.StorageInfo{
		Products:     products,
		Customers:    customers,
		Orders:       unsynced,
		SyncedOrders: synced,
	}, nil
}

// ReplaceProducts swaps the cached product catalog
func (s *LocalStore) ReplaceProducts(ctx context.Context, products []model.Product) error {
	records := make([]Record, 0, len(products))
	for _, p := range products {
		rec, err := encodeRecord(p.ID, p, nil)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := s.store.ReplaceAll(ctx, CollectionProducts, records); err != nil {
		return fmt.Errorf("%w: failed to replace products: %w", ErrStorage, err)
	}
	return nil
}

// GetProducts returns the cached product catalog ordered by name
func (s *LocalStore) GetProducts(ctx context.Context) ([]model.Product, error) {
	records, err := s.store.Scan(ctx, CollectionProducts, Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan products: %w", ErrStorage, err)
	}

	products := make([]model.Product, 0, len(records))
	for _, rec := range records {
		var p model.Product
		if err := json.Unmarshal(rec.Value, &p); err != nil {
			return nil, fmt.Errorf("%w: failed to decode product %s: %w", ErrStorage, rec.Key, err)
		}
		products = append(products, p)
	}
	sort.SliceStable(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

// ReplaceCustomers swaps the cached customer list
func (s *LocalStore) ReplaceCustomers(ctx context.Context, customers []model.Customer) error {
	records := make([]Record, 0, len(customers))
	for _, c := range customers {
		rec, err := encodeRecord(c.ID, c, nil)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := s.store.ReplaceAll(ctx, CollectionCustomers, records); err != nil {
		return fmt.Errorf("%w: failed to replace customers: %w", ErrStorage, err)
	}
	return nil
}

// GetCustomers returns the cached customers ordered by name
func (s *LocalStore) GetCustomers(ctx context.Context) ([]model.Customer, error) {
	records, err := s.store.Scan(ctx, CollectionCustomers, Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan customers: %w", ErrStorage, err)
	}

	customers := make([]model.Customer, 0, len(records))
	for _, rec := range records {
		var c model.Customer
		if err := json.Unmarshal(rec.Value, &c); err != nil {
			return nil, fmt.Errorf("%w: failed to decode customer %s: %w", ErrStorage, rec.Key, err)
		}
		customers = append(customers, c)
	}
	sort.SliceStable(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

// Ping checks that the backend is reachable
func (s *LocalStore) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Close releases the backend
func (s *LocalStore) Close() error {
	return s.store.Close()
}

func (s *LocalStore) getOrder(ctx context.Context, id string) (*model.OfflineOrder, error) {
	rec, err := s.store.Get(ctx, CollectionOrders, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read order %s: %w", ErrStorage, id, err)
	}

	var order model.OfflineOrder
	if err := json.Unmarshal(rec.Value, &order); err != nil {
		return nil, fmt.Errorf("%w: failed to decode order %s: %w", ErrStorage, id, err)
	}
	return &order, nil
}

func (s *LocalStore) writeOrder(ctx context.Context, order *model.OfflineOrder) error {
	rec, err := encodeRecord(order.ID, order, map[string]string{
		IndexSynced: strconv.FormatBool(order.Synced),
	})
	if err != nil {
		return err
	}

	if err := s.store.Put(ctx, CollectionOrders, rec); err != nil {
		s.logger.Error("Failed to write order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: failed to write order %s: %w", ErrStorage, order.ID, err)
	}
	return nil
}

func encodeRecord(key string, value interface{}, indexes map[string]string) (Record, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Record{}, fmt.Errorf("%w: failed to encode %s: %w", ErrStorage, key, err)
	}
	return Record{Key: key, Value: data, Indexes: indexes}, nil
}

func decodeOrders(records []Record) ([]*model.OfflineOrder, error) {
	orders := make([]*model.OfflineOrder, 0, len(records))
	for _, rec := range records {
		var order model.OfflineOrder
		if err := json.Unmarshal(rec.Value, &order); err != nil {
			return nil, fmt.Errorf("%w: failed to decode order %s: %w", ErrStorage, rec.Key, err)
		}
		orders = append(orders, &order)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func unsyncedFilter() Filter {
	return Filter{Index: IndexSynced, Value: strconv.FormatBool(false)}
}
