package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-svc/models"

	"github.com/lib/pq"
)

const orderColumns = "id, user_id, first_name, last_name, email, address, postal_code, city, paid, payment_method, created_at, updated_at"

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores the order and its items in one transaction. IDs and
// timestamps are written back into o.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		"INSERT INTO orders (user_id, first_name, last_name, email, address, postal_code, city, paid, payment_method) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at",
		nullableInt(o.UserID), o.FirstName, o.LastName, o.Email, o.Address, o.PostalCode, o.City, o.Paid, o.PaymentMethod,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := tx.QueryRowContext(ctx,
			"INSERT INTO order_items (order_id, product_id, product_name, price, quantity) VALUES ($1, $2, $3, $4, $5) RETURNING id",
			o.ID, item.ProductID, item.ProductName, item.Price, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id int) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	orders := []models.Order{*o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders newest first. A limit of zero means no limit.
func (r *OrderRepository) ListByUser(ctx context.Context, userID, limit int) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int]int, len(orders))
	for i, o := range orders {
		ids[i] = int64(o.ID)
		index[o.ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, order_id, product_id, product_name, price, quantity FROM order_items WHERE order_id = ANY($1) ORDER BY id",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to fetch order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Price, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var userID sql.NullInt64
	if err := row.Scan(&o.ID, &userID, &o.FirstName, &o.LastName, &o.Email, &o.Address, &o.PostalCode, &o.City, &o.Paid, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := int(userID.Int64)
		o.UserID = &id
	}
	return &o, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
