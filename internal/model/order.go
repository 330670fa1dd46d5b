// internal/model/order.go
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LocalIDPrefix marks ids minted on the terminal so they never collide with
// ids issued by the back office.
const LocalIDPrefix = "offline_"

// ErrInvalidOrder is returned when an order violates its creation invariants
var ErrInvalidOrder = errors.New("invalid order")

// PaymentMethod represents how the customer paid
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodQRIS     PaymentMethod = "qris"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodEWallet  PaymentMethod = "ewallet"
)

// PaymentStatus represents the settlement state of the payment
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
)

// OrderStatus represents the business state of the order
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusPending   OrderStatus = "pending"
)

// IsValid reports whether the payment method is known
func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodQRIS, PaymentMethodTransfer, PaymentMethodEWallet:
		return true
	}
	return false
}

// IsValid reports whether the payment status is known
func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPaid, PaymentStatusPending, PaymentStatusPartial:
		return true
	}
	return false
}

// IsValid reports whether the order status is known
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusPending:
		return true
	}
	return false
}

// OrderItem is one cart line of an offline order
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	IsService   bool            `json:"is_service"`
}

// OfflineOrder is a sale recorded on the terminal. It stays authoritative
// locally until the back office acknowledges it.
type OfflineOrder struct {
	ID                string          `json:"id"`
	OfflineID         string          `json:"offline_id"`
	OrderNumber       string          `json:"order_number"`
	CustomerID        *string         `json:"customer_id,omitempty"`
	Items             []OrderItem     `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	Status            OrderStatus     `json:"status"`
	Notes             *string         `json:"notes,omitempty"`
	Synced            bool            `json:"synced"`
	CreatedAt         time.Time       `json:"created_at"`
	SyncAttempts      int             `json:"sync_attempts"`
	LastSyncAttempt   *time.Time      `json:"last_sync_attempt,omitempty"`
	SyncError         *string         `json:"sync_error,omitempty"`
	SyncedAt          *time.Time      `json:"synced_at,omitempty"`
	ServerOrderID     *string         `json:"server_order_id,omitempty"`
	ServerOrderNumber *string         `json:"server_order_number,omitempty"`
}

// SyncReceipt is what the back office returns for an accepted order
type SyncReceipt struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Duplicate   bool   `json:"duplicate"`
}

// IsLocal reports whether the id was minted on this terminal
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Validate checks the invariants that must hold when the order is written.
// Totals are checked here and never re-derived afterwards.
func (o *OfflineOrder) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidOrder)
	}
	if o.OfflineID == "" {
		return fmt.Errorf("%w: offline_id is required", ErrInvalidOrder)
	}
	if o.OrderNumber == "" {
		return fmt.Errorf("%w: order_number is required", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for i, item := range o.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product_id", ErrInvalidOrder, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidOrder, i)
		}
		if item.UnitPrice.IsNegative() || item.TotalPrice.IsNegative() {
			return fmt.Errorf("%w: item %d has a negative price", ErrInvalidOrder, i)
		}
	}

	amounts := map[string]decimal.Decimal{
		"subtotal":        o.Subtotal,
		"tax_amount":      o.TaxAmount,
		"discount_amount": o.DiscountAmount,
		"total_amount":    o.TotalAmount,
	}
	for name, amount := range amounts {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidOrder, name)
		}
	}

	expected := o.Subtotal.Add(o.TaxAmount).Sub(o.DiscountAmount)
	if !o.TotalAmount.Equal(expected) {
		return fmt.Errorf("%w: total_amount %s does not equal subtotal + tax - discount (%s)",
			ErrInvalidOrder, o.TotalAmount.String(), expected.String())
	}

	if !o.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: unknown payment_method %q", ErrInvalidOrder, o.PaymentMethod)
	}
	if !o.PaymentStatus.IsValid() {
		return fmt.Errorf("%w: unknown payment_status %q", ErrInvalidOrder, o.PaymentStatus)
	}
	if !o.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, o.Status)
	}
	if o.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrInvalidOrder)
	}

	return nil
}

// Clone returns a deep copy so callers never share slices or pointers with
// the stored record.
func (o *OfflineOrder) Clone() *OfflineOrder {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.CustomerID = cloneString(o.CustomerID)
	c.Notes = cloneString(o.Notes)
	c.SyncError = cloneString(o.SyncError)
	c.ServerOrderID = cloneString(o.ServerOrderID)
	c.ServerOrderNumber = cloneString(o.ServerOrderNumber)
	c.LastSyncAttempt = cloneTime(o.LastSyncAttempt)
	c.SyncedAt = cloneTime(o.SyncedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
