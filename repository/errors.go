package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")

	// ErrPaymentFinal is returned when a write would reopen a completed or
	// refunded payment.
	ErrPaymentFinal = errors.New("payment is already final")
)

// isUniqueViolation reports a postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
