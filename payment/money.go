package payment

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a two-decimal amount to the gateway's integer
// representation, truncating any fraction of a cent.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).IntPart()
}
