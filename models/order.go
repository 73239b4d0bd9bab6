package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

type Order struct {
	ID            int           `json:"id"`
	UserID        *int          `json:"user_id,omitempty"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	Email         string        `json:"email"`
	Address       string        `json:"address"`
	PostalCode    string        `json:"postal_code"`
	City          string        `json:"city"`
	Paid          bool          `json:"paid"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []OrderItem   `json:"items"`
}

// TotalCost is the sum of the line item costs.
func (o *Order) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Cost())
	}
	return total
}

// OwnedBy reports whether userID placed the order. Guest orders have no owner.
func (o *Order) OwnedBy(userID int) bool {
	return o.UserID != nil && *o.UserID == userID
}

func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		TotalCost decimal.Decimal `json:"total_cost"`
	}{order(o), o.TotalCost()})
}

type OrderItem struct {
	ID          int             `json:"id"`
	OrderID     int             `json:"order_id"`
	ProductID   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) Cost() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderContact is the customer and shipping part of the checkout form.
type OrderContact struct {
	FirstName  string `json:"first_name" form:"first_name" binding:"required,max=50"`
	LastName   string `json:"last_name" form:"last_name" binding:"required,max=50"`
	Email      string `json:"email" form:"email" binding:"required,email,max=254"`
	Address    string `json:"address" form:"address" binding:"required,max=250"`
	PostalCode string `json:"postal_code" form:"postal_code" binding:"required,max=20"`
	City       string `json:"city" form:"city" binding:"required,max=100"`
}
