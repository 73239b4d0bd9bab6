package models

import "github.com/shopspring/decimal"

const (
	EventOrderCreated      = "order_created"
	EventPaymentCompleted  = "payment_completed"
	EventPaymentFailed     = "payment_failed"
	EventPaymentProcessing = "payment_processing"
	EventPaymentRefunded   = "payment_refunded"
)

type OrderEvent struct {
	EventType     string          `json:"event_type"`
	OrderID       int             `json:"order_id"`
	UserID        *int            `json:"user_id,omitempty"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// NewOrderEvent fills the order fields of an event; payment fields are set by the caller.
func NewOrderEvent(eventType string, order *Order) OrderEvent {
	return OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Email:         order.Email,
		FirstName:     order.FirstName,
		TotalCost:     order.TotalCost(),
		PaymentMethod: order.PaymentMethod,
	}
}
