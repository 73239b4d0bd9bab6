package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type Payment struct {
	ID            int               `json:"id"`
	OrderID       int               `json:"order_id"`
	Method        PaymentMethod     `json:"payment_method"`
	Status        PaymentStatus     `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Details       map[string]string `json:"payment_details"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}
