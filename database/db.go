package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shop-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// schema is applied statement by statement on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(150) UNIQUE NOT NULL,
		email VARCHAR(254) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		is_staff BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id SERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		slug VARCHAR(200) UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		name VARCHAR(200) NOT NULL,
		slug VARCHAR(200) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(10, 2) NOT NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		stock INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_id_slug ON products (id, slug)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		first_name VARCHAR(50) NOT NULL,
		last_name VARCHAR(50) NOT NULL,
		email VARCHAR(254) NOT NULL,
		address VARCHAR(250) NOT NULL,
		postal_code VARCHAR(20) NOT NULL,
		city VARCHAR(100) NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		payment_method VARCHAR(20) NOT NULL DEFAULT 'credit_card',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id),
		product_name VARCHAR(200) NOT NULL,
		price NUMERIC(10, 2) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id SERIAL PRIMARY KEY,
		order_id INTEGER UNIQUE NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		payment_method VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		transaction_id VARCHAR(255),
		amount NUMERIC(10, 2) NOT NULL,
		payment_details JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_transaction ON payments (transaction_id)`,
}

func InitDB(cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established", zap.String("database", cfg.Name))
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
