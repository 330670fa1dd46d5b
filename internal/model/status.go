// internal/model/status.go
package model

import "time"

// ConnectionType describes the link the terminal is using
type ConnectionType string

const (
	ConnectionTypeEthernet ConnectionType = "ethernet"
	ConnectionTypeWiFi     ConnectionType = "wifi"
	ConnectionTypeCellular ConnectionType = "cellular"
	ConnectionTypeUnknown  ConnectionType = "unknown"
	ConnectionTypeNone     ConnectionType = "none"
)

// NetworkStatus is an immutable connectivity snapshot produced by the
// network monitor. A new value replaces the old one on every change.
type NetworkStatus struct {
	IsOnline             bool           `json:"is_online"`
	IsSlowConnection     bool           `json:"is_slow_connection"`
	ConnectionType       ConnectionType `json:"connection_type"`
	LastOnlineTime       *time.Time     `json:"last_online_time,omitempty"`
	LastOfflineTime      *time.Time     `json:"last_offline_time,omitempty"`
	IsCheckingConnection bool           `json:"is_checking_connection"`
	LastPingTime         *time.Time     `json:"last_ping_time,omitempty"`
	PingLatencyMs        int64          `json:"ping_latency_ms"`
	RetryCount           int            `json:"retry_count"`
	MaxRetries           int            `json:"max_retries"`
}

// SyncStatus is an immutable snapshot of the sync engine state
type SyncStatus struct {
	IsOnline            bool       `json:"is_online"`
	LastSync            *time.Time `json:"last_sync,omitempty"`
	PendingOrders       int        `json:"pending_orders"`
	SyncInProgress      bool       `json:"sync_in_progress"`
	LastError           *string    `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	AutoRetryExhausted  bool       `json:"auto_retry_exhausted"`
}

// CycleResult summarises one drain cycle
type CycleResult struct {
	Attempted int       `json:"attempted"`
	Synced    int       `json:"synced"`
	Failed    int       `json:"failed"`
	Rejected  int       `json:"rejected"`
	Skipped   bool      `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Errors    []string  `json:"errors,omitempty"`
}

// AlertLevel grades how strongly the cashier must be interrupted
type AlertLevel string

const (
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelError   AlertLevel = "error"
)

// Alert is an interrupting message for the cashier. Local storage failures,
// exhausted sync retries and orders the back office refuses raise one.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	OrderID   string     `json:"order_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Alert codes
const (
	AlertCodeLocalStorage   = "LOCAL_STORAGE_ERROR"
	AlertCodeRetryExhausted = "SYNC_RETRY_EXHAUSTED"
	AlertCodeOrderRejected  = "ORDER_REJECTED"
)
