package models

import "time"

// SystemMetrics is a lightweight snapshot of request and transaction instrumentation.
type SystemMetrics struct {
	RequestsTotal                uint64    `json:"requests_total"`
	AverageRequestDurationMs     float64   `json:"average_request_duration_ms"`
	TransactionsCommitted        uint64    `json:"transactions_committed"`
	TransactionsRolledBack       uint64    `json:"transactions_rolled_back"`
	AverageTransactionDurationMs float64   `json:"average_transaction_duration_ms"`
	Goroutines                   int       `json:"goroutines"`
	GeneratedAt                  time.Time `json:"generated_at"`
}
