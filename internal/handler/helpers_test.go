package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-sync-service/internal/broadcast"
	"pos-sync-service/internal/config"
	"pos-sync-service/internal/model"
	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMonitor struct {
	mu       sync.Mutex
	status   model.NetworkStatus
	visible  []bool
	checks   int
	statuses *broadcast.Broadcaster[model.NetworkStatus]
}

func newFakeMonitor(online bool) *fakeMonitor {
	return &fakeMonitor{
		status:   model.NetworkStatus{IsOnline: online, ConnectionType: model.ConnectionTypeEthernet, MaxRetries: 3},
		statuses: broadcast.New[model.NetworkStatus]("test_network", zap.NewNop()),
	}
}

func (m *fakeMonitor) CheckNow(ctx context.Context) model.NetworkStatus {
	m.mu.Lock()
	m.checks++
	m.mu.Unlock()
	return m.Status()
}

func (m *fakeMonitor) OnChange(listener broadcast.Listener[model.NetworkStatus]) func() {
	return m.statuses.Subscribe(listener)
}

func (m *fakeMonitor) Subscribe(buffer int) (<-chan model.NetworkStatus, func()) {
	return m.statuses.SubscribeChan(buffer)
}

func (m *fakeMonitor) Status() model.NetworkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *fakeMonitor) NotifyVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = append(m.visible, visible)
}

func (m *fakeMonitor) visibility() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.visible...)
}

func (m *fakeMonitor) setOnline(online bool) {
	m.mu.Lock()
	m.status.IsOnline = online
	status := m.status
	m.mu.Unlock()
	m.statuses.Publish(status)
}

// acceptingBackOffice accepts every order it is given
type acceptingBackOffice struct {
	mu       sync.Mutex
	accepted []string
}

func (b *acceptingBackOffice) CreateOrder(ctx context.Context, order *model.OfflineOrder) (model.SyncReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accepted = append(b.accepted, order.OfflineID)
	return model.SyncReceipt{
		OrderID:     fmt.Sprintf("srv-%d", len(b.accepted)),
		OrderNumber: fmt.Sprintf("ORD-%04d", len(b.accepted)),
	}, nil
}

type testAPI struct {
	router  *gin.Engine
	engine  *service.SyncEngine
	store   *repository.LocalStore
	monitor *fakeMonitor
	ws      *WebSocketHandler
}

func newTestAPI(t *testing.T, online bool) *testAPI {
	t.Helper()

	logger := zap.NewNop()
	cfg := &config.Config{
		App:   config.AppConfig{Name: "pos-sync-service", Version: "test"},
		Store: config.StoreConfig{Backend: "memory"},
	}

	store := repository.NewLocalStore(repository.NewMemoryStore(), logger)
	monitor := newFakeMonitor(online)
	engine := service.NewSyncEngine(store, &acceptingBackOffice{}, monitor, nil, config.SyncConfig{
		RetryAttempts: 3,
		LeaseTTL:      0,
	}, logger)
	t.Cleanup(engine.Stop)

	ws := NewWebSocketHandler(engine, monitor, nil, logger)
	t.Cleanup(ws.Close)

	router := gin.New()
	api := router.Group("/api/v1")
	NewHealthHandler(store, nil, monitor, ws, cfg, logger).RegisterRoutes(api)
	NewOrderHandler(engine, store, logger).RegisterRoutes(api)
	NewSyncHandler(engine, store, logger).RegisterRoutes(api)
	NewNetworkHandler(monitor, logger).RegisterRoutes(api)
	ws.RegisterRoutes(api.Group("/ws"))

	return &testAPI{router: router, engine: engine, store: store, monitor: monitor, ws: ws}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp utils.APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func checkoutBody(subtotal, tax, discount, total string) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{{
			"product_id":   "p1",
			"product_name": "Kopi Susu",
			"quantity":     2,
			"unit_price":   "25000",
			"total_price":  "50000",
		}},
		"subtotal":        subtotal,
		"tax_amount":      tax,
		"discount_amount": discount,
		"total_amount":    total,
		"payment_method":  "cash",
	}
}

// decodeData re-decodes the envelope data into out
func decodeData(t *testing.T, resp utils.APIResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
