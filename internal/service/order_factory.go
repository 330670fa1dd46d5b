// internal/service/order_factory.go
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pos-sync-service/internal/model"
)

// OrderDraft is the cart content handed over by the UI at checkout
type OrderDraft struct {
	CustomerID     *string             `json:"customer_id,omitempty"`
	Items          []model.OrderItem   `json:"items" binding:"required,min=1"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	TaxAmount      decimal.Decimal     `json:"tax_amount"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	PaymentMethod  model.PaymentMethod `json:"payment_method" binding:"required"`
	PaymentStatus  model.PaymentStatus `json:"payment_status"`
	Status         model.OrderStatus   `json:"status"`
	Notes          *string             `json:"notes,omitempty"`
}

// OrderFactory mints offline orders with ids that never collide with
// server ids or with each other.
type OrderFactory struct {
	now func() time.Time
}

// NewOrderFactory creates an order factory
func NewOrderFactory() *OrderFactory {
	return &OrderFactory{now: time.Now}
}

// NewOrder builds an unsynced order from a draft. Totals are taken as given;
// the store validates them on write.
func (f *OrderFactory) NewOrder(draft OrderDraft) *model.OfflineOrder {
	createdAt := f.now().UTC()

	paymentStatus := draft.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = model.PaymentStatusPaid
	}
	status := draft.Status
	if status == "" {
		status = model.OrderStatusCompleted
	}

	items := make([]model.OrderItem, len(draft.Items))
	copy(items, draft.Items)

	return &model.OfflineOrder{
		ID:             NewLocalID(createdAt),
		OfflineID:      uuid.NewString(),
		OrderNumber:    NewOrderNumber(createdAt),
		CustomerID:     draft.CustomerID,
		Items:          items,
		Subtotal:       draft.Subtotal,
		TaxAmount:      draft.TaxAmount,
		DiscountAmount: draft.DiscountAmount,
		TotalAmount:    draft.TotalAmount,
		PaymentMethod:  draft.PaymentMethod,
		PaymentStatus:  paymentStatus,
		Status:         status,
		Notes:          draft.Notes,
		Synced:         false,
		CreatedAt:      createdAt,
	}
}

// NewLocalID returns offline_<unix-ms>_<random>
func NewLocalID(t time.Time) string {
	return fmt.Sprintf("%s%d_%s", model.LocalIDPrefix, t.UnixMilli(), randomToken(9))
}

// NewOrderNumber returns OFF-YYYYMMDD-HHMMSS-XXXX
func NewOrderNumber(t time.Time) string {
	return fmt.Sprintf("OFF-%s-%s", t.Format("20060102-150405"), strings.ToUpper(randomToken(4)))
}

func randomToken(n int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token[:n]
}
