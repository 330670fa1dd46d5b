// internal/model/catalog.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a cached mirror of a back office catalog product
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	IsService bool            `json:"is_service"`
	Active    bool            `json:"active"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Customer is a cached mirror of a back office customer
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorageInfo summarises the local store contents. Orders counts only
// orders still waiting for the back office.
type StorageInfo struct {
	Products     int `json:"products"`
	Customers    int `json:"customers"`
	Orders       int `json:"orders"`
	SyncedOrders int `json:"synced_orders"`
}
