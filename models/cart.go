package models

import "github.com/shopspring/decimal"

// CartLine is one product in a session cart. Price is the snapshot taken
// when the product was added.
type CartLine struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Cost() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CartAddRequest struct {
	Quantity int  `json:"quantity" form:"quantity" binding:"omitempty,min=1,max=20"`
	Override bool `json:"override" form:"override"`
}
