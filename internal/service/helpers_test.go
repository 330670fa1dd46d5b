package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-sync-service/internal/broadcast"
	"pos-sync-service/internal/config"
	"pos-sync-service/internal/lease"
	"pos-sync-service/internal/model"
	"pos-sync-service/internal/remote"
	"pos-sync-service/internal/repository"
)

// fakeProbe is a NetworkProbe driven by the test
type fakeProbe struct {
	mu       sync.Mutex
	status   model.NetworkStatus
	statuses *broadcast.Broadcaster[model.NetworkStatus]
}

func newFakeProbe(online bool) *fakeProbe {
	return &fakeProbe{
		status:   model.NetworkStatus{IsOnline: online, MaxRetries: 3},
		statuses: broadcast.New[model.NetworkStatus]("test_network", zap.NewNop()),
	}
}

func (p *fakeProbe) CheckNow(ctx context.Context) model.NetworkStatus {
	return p.Status()
}

func (p *fakeProbe) OnChange(listener broadcast.Listener[model.NetworkStatus]) func() {
	return p.statuses.Subscribe(listener)
}

func (p *fakeProbe) Status() model.NetworkStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakeProbe) setOnline(online bool) {
	p.mu.Lock()
	p.status.IsOnline = online
	status := p.status
	p.mu.Unlock()
	p.statuses.Publish(status)
}

// fakeBackOffice accepts orders over HTTP and deduplicates them on
// offline_id the way the back office does.
type fakeBackOffice struct {
	server *httptest.Server

	mu       sync.Mutex
	orders   map[string]string
	received []string
	calls    int
	failing  bool
	rejected map[string]bool

	block   chan struct{}
	entered chan struct{}
}

func newFakeBackOffice(t *testing.T) *fakeBackOffice {
	bo := &fakeBackOffice{
		orders:   make(map[string]string),
		rejected: make(map[string]bool),
	}
	bo.server = httptest.NewServer(http.HandlerFunc(bo.handle))
	t.Cleanup(bo.server.Close)
	return bo
}

func (bo *fakeBackOffice) handle(w http.ResponseWriter, r *http.Request) {
	var payload remote.OrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	bo.mu.Lock()
	block, entered := bo.block, bo.entered
	bo.mu.Unlock()
	if block != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
	}

	bo.mu.Lock()
	defer bo.mu.Unlock()

	bo.calls++
	bo.received = append(bo.received, payload.OfflineID)

	if bo.failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if bo.rejected[payload.OfflineID] {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid order"}`))
		return
	}
	if id, ok := bo.orders[payload.OfflineID]; ok {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, `{"order_id":%q,"duplicate":true}`, id)
		return
	}

	id := fmt.Sprintf("srv-%d", len(bo.orders)+1)
	bo.orders[payload.OfflineID] = id
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"order_id":%q,"order_number":"ORD-%04d"}`, id, len(bo.orders))
}

func (bo *fakeBackOffice) setFailing(failing bool) {
	bo.mu.Lock()
	bo.failing = failing
	bo.mu.Unlock()
}

func (bo *fakeBackOffice) reject(offlineID string) {
	bo.mu.Lock()
	bo.rejected[offlineID] = true
	bo.mu.Unlock()
}

func (bo *fakeBackOffice) seed(offlineID, serverID string) {
	bo.mu.Lock()
	bo.orders[offlineID] = serverID
	bo.mu.Unlock()
}

func (bo *fakeBackOffice) callCount() int {
	bo.mu.Lock()
	defer bo.mu.Unlock()
	return bo.calls
}

func (bo *fakeBackOffice) receivedIDs() []string {
	bo.mu.Lock()
	defer bo.mu.Unlock()
	return append([]string(nil), bo.received...)
}

func (bo *fakeBackOffice) client() *remote.Client {
	return remote.NewClient(config.RemoteConfig{
		BaseURL:       bo.server.URL,
		OrdersPath:    "/api/v1/orders",
		HealthPath:    "/health",
		ProductsPath:  "/api/v1/products",
		CustomersPath: "/api/v1/customers",
		Timeout:       2 * time.Second,
		TerminalID:    "till-1",
		StoreID:       "store-1",
	}, nil, zap.NewNop())
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:         time.Hour,
		RetryAttempts:    3,
		RetryDelay:       10 * time.Millisecond,
		LeaseTTL:         time.Minute,
		ShutdownDeadline: 2 * time.Second,
	}
}

type engineOptions struct {
	config  config.SyncConfig
	durable repository.DurableStore
	lease   lease.Lease
}

func newTestEngine(t *testing.T, probe *fakeProbe, bo *fakeBackOffice, opts engineOptions) (*SyncEngine, *repository.LocalStore) {
	t.Helper()

	cfg := opts.config
	if cfg.RetryAttempts == 0 {
		cfg = testSyncConfig()
	}
	durable := opts.durable
	if durable == nil {
		durable = repository.NewMemoryStore()
	}

	store := repository.NewLocalStore(durable, zap.NewNop())
	engine := NewSyncEngine(store, bo.client(), probe, opts.lease, cfg, zap.NewNop())
	t.Cleanup(engine.Stop)
	return engine, store
}

func testDraft(subtotal, tax, discount int64) OrderDraft {
	return OrderDraft{
		Items: []model.OrderItem{{
			ProductID:   "p1",
			ProductName: "Nasi Goreng",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(subtotal),
			TotalPrice:  decimal.NewFromInt(subtotal),
		}},
		Subtotal:       decimal.NewFromInt(subtotal),
		TaxAmount:      decimal.NewFromInt(tax),
		DiscountAmount: decimal.NewFromInt(discount),
		TotalAmount:    decimal.NewFromInt(subtotal + tax - discount),
		PaymentMethod:  model.PaymentMethodCash,
	}
}
