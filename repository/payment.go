package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"shop-svc/models"
)

const paymentColumns = "id, order_id, payment_method, status, transaction_id, amount, payment_details, created_at, updated_at, processed_at"

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment. An order can hold only one payment; a second
// insert yields ErrConflict.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	details, err := encodeDetails(p.Details)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx,
		"INSERT INTO payments (order_id, payment_method, status, transaction_id, amount, payment_details) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at",
		p.OrderID, p.Method, p.Status, nullableString(p.TransactionID), p.Amount, details,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Upsert creates the order's payment or, if one exists, overwrites its
// method and details and puts it back to pending. Completed and refunded
// payments are never reopened; Upsert returns ErrPaymentFinal for them.
func (r *PaymentRepository) Upsert(ctx context.Context, p *models.Payment) error {
	details, err := encodeDetails(p.Details)
	if err != nil {
		return err
	}

	var txn sql.NullString
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, payment_method, status, amount, payment_details)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE SET
			payment_method = EXCLUDED.payment_method,
			payment_details = EXCLUDED.payment_details,
			status = EXCLUDED.status,
			processed_at = NULL,
			updated_at = NOW()
		WHERE payments.status NOT IN ('completed', 'refunded')
		RETURNING id, transaction_id, amount, created_at, updated_at`,
		p.OrderID, p.Method, models.PaymentStatusPending, p.Amount, details,
	).Scan(&p.ID, &txn, &p.Amount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPaymentFinal
	}
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	p.Status = models.PaymentStatusPending
	p.TransactionID = txn.String
	p.ProcessedAt = nil
	return nil
}

func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID int) (*models.Payment, error) {
	return r.get(ctx, "SELECT "+paymentColumns+" FROM payments WHERE order_id = $1", orderID)
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.get(ctx, "SELECT "+paymentColumns+" FROM payments WHERE transaction_id = $1", transactionID)
}

// SetStatus moves a non-final payment to status, stamping transactionID when
// non-empty. Completed and refunded payments are left untouched.
func (r *PaymentRepository) SetStatus(ctx context.Context, id int, status models.PaymentStatus, transactionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE payments SET status = $2, transaction_id = COALESCE($3, transaction_id), updated_at = NOW() WHERE id = $1 AND status NOT IN ('completed', 'refunded')",
		id, status, nullableString(transactionID),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkCompleted is the only transition that flips the order's paid flag.
// The payment row is locked, and the update happens only when the payment is
// not already final; a repeated call reports false and changes nothing.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, id int, transactionID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orderID int
	var status models.PaymentStatus
	err = tx.QueryRowContext(ctx, "SELECT order_id, status FROM payments WHERE id = $1 FOR UPDATE", id).Scan(&orderID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock payment: %w", err)
	}
	if status == models.PaymentStatusCompleted || status == models.PaymentStatusRefunded {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $2, transaction_id = COALESCE($3, transaction_id), processed_at = NOW(), updated_at = NOW() WHERE id = $1",
		id, models.PaymentStatusCompleted, nullableString(transactionID),
	); err != nil {
		return false, fmt.Errorf("failed to complete payment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE orders SET paid = TRUE, updated_at = NOW() WHERE id = $1", orderID); err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payment: %w", err)
	}
	return true, nil
}

// MarkRefunded moves a completed payment to refunded and clears the order's
// paid flag in the same transaction.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orderID int
	var status models.PaymentStatus
	err = tx.QueryRowContext(ctx, "SELECT order_id, status FROM payments WHERE id = $1 FOR UPDATE", id).Scan(&orderID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock payment: %w", err)
	}
	if status != models.PaymentStatusCompleted {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1",
		id, models.PaymentStatusRefunded,
	); err != nil {
		return false, fmt.Errorf("failed to refund payment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE orders SET paid = FALSE, updated_at = NOW() WHERE id = $1", orderID); err != nil {
		return false, fmt.Errorf("failed to mark order unpaid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit refund: %w", err)
	}
	return true, nil
}

func (r *PaymentRepository) get(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var (
		p       models.Payment
		txn     sql.NullString
		details []byte
		done    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Status, &txn, &p.Amount, &details, &p.CreatedAt, &p.UpdatedAt, &done)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p.TransactionID = txn.String
	if done.Valid {
		p.ProcessedAt = &done.Time
	}
	p.Details = map[string]string{}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &p.Details); err != nil {
			return nil, fmt.Errorf("failed to decode payment details: %w", err)
		}
	}
	return &p, nil
}

// encodeDetails renders the details blob as text; lib/pq would send []byte as bytea.
func encodeDetails(details map[string]string) (string, error) {
	if details == nil {
		details = map[string]string{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment details: %w", err)
	}
	return string(data), nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
