// internal/remote/client.go
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-sync-service/internal/config"
	"pos-sync-service/internal/model"
)

// ErrRejected is returned when the back office refuses an order for a reason
// that retrying the same payload will not fix.
var ErrRejected = errors.New("rejected by back office")

// StatusError carries a non-2xx back office response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Is reports client errors other than timeouts and throttling as rejections
func (e *StatusError) Is(target error) bool {
	if target != ErrRejected {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout &&
		e.StatusCode != http.StatusTooManyRequests
}

// OrderPayload is the body of the remote order creation call
type OrderPayload struct {
	OfflineID      string              `json:"offline_id"`
	OrderNumber    string              `json:"order_number"`
	CustomerID     *string             `json:"customer_id"`
	Items          []OrderItemPayload  `json:"items"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	TaxAmount      decimal.Decimal     `json:"tax_amount"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	PaymentMethod  model.PaymentMethod `json:"payment_method"`
	PaymentStatus  model.PaymentStatus `json:"payment_status"`
	Status         model.OrderStatus   `json:"status"`
	Notes          *string             `json:"notes,omitempty"`
	TerminalID     string              `json:"terminal_id,omitempty"`
	StoreID        string              `json:"store_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// OrderItemPayload is one line of OrderPayload
type OrderItemPayload struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	IsService   bool            `json:"is_service"`
}

type orderResult struct {
	OrderID     string `json:"order_id"`
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Duplicate   bool   `json:"duplicate"`
	Status      string `json:"status"`
}

// orderResponse accepts both a bare result and one wrapped in a data envelope
type orderResponse struct {
	orderResult
	Data *orderResult `json:"data"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// Client talks to the back office API
type Client struct {
	config     config.RemoteConfig
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient creates a back office client. The transport timeout bounds
// every call, including order submission.
func NewClient(cfg config.RemoteConfig, tokens TokenSource, logger *zap.Logger) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger.With(zap.String("component", "remote_client")),
	}
}

// NewPayload converts a local order into the remote creation payload
func NewPayload(order *model.OfflineOrder, terminalID, storeID string) OrderPayload {
	items := make([]OrderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
			IsService:   item.IsService,
		})
	}

	return OrderPayload{
		OfflineID:      order.OfflineID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		Items:          items,
		Subtotal:       order.Subtotal,
		TaxAmount:      order.TaxAmount,
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
		PaymentMethod:  order.PaymentMethod,
		PaymentStatus:  order.PaymentStatus,
		Status:         order.Status,
		Notes:          order.Notes,
		TerminalID:     terminalID,
		StoreID:        storeID,
		CreatedAt:      order.CreatedAt,
	}
}

// CreateOrder submits a local order. The back office deduplicates on
// offline_id, so a conflict or a duplicate flag is reported as accepted.
func (c *Client) CreateOrder(ctx context.Context, order *model.OfflineOrder) (model.SyncReceipt, error) {
	body, err := json.Marshal(NewPayload(order, c.config.TerminalID, c.config.StoreID))
	if err != nil {
		return model.SyncReceipt{}, fmt.Errorf("failed to encode order %s: %w", order.ID, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.config.OrdersPath, bytes.NewReader(body))
	if err != nil {
		return model.SyncReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", order.OfflineID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.SyncReceipt{}, fmt.Errorf("failed to submit order %s: %w", order.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.SyncReceipt{}, fmt.Errorf("failed to read response for order %s: %w", order.ID, err)
	}

	if resp.StatusCode == http.StatusConflict {
		receipt := decodeReceipt(data)
		receipt.Duplicate = true
		c.logger.Info("Order already exists on back office",
			zap.String("order_id", order.ID),
			zap.String("offline_id", order.OfflineID),
		)
		return receipt, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.SyncReceipt{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}

	return decodeReceipt(data), nil
}

// Ping sends a HEAD request to the liveness path and returns the latency
func (c *Client) Ping(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, http.MethodHead, c.config.HealthPath, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	latency := time.Since(start)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latency, &StatusError{StatusCode: resp.StatusCode}
	}
	return latency, nil
}

// FetchProducts downloads the product catalog
func (c *Client) FetchProducts(ctx context.Context) ([]model.Product, error) {
	return fetchList[model.Product](ctx, c, c.config.ProductsPath)
}

// FetchCustomers downloads the customer list
func (c *Client) FetchCustomers(ctx context.Context) ([]model.Customer, error) {
	return fetchList[model.Customer](ctx, c, c.config.CustomersPath)
}

func fetchList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return items, nil
	}

	var envelope listResponse[T]
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return envelope.Data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.config.TerminalID != "" {
		req.Header.Set("X-Terminal-ID", c.config.TerminalID)
	}
	return req, nil
}

func decodeReceipt(data []byte) model.SyncReceipt {
	var resp orderResponse
	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, &resp) != nil {
		return model.SyncReceipt{}
	}

	result := resp.orderResult
	if resp.Data != nil {
		result = *resp.Data
	}
	id := result.OrderID
	if id == "" {
		id = result.ID
	}
	return model.SyncReceipt{
		OrderID:     id,
		OrderNumber: result.OrderNumber,
		Duplicate:   result.Duplicate || result.Status == "duplicate",
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
