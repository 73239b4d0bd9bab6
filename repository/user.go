package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-svc/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user; a taken username or email yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id, is_staff, created_at",
		u.Username, u.Email, u.PasswordHash,
	).Scan(&u.ID, &u.IsStaff, &u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.get(ctx, "SELECT id, username, email, password_hash, is_staff, created_at FROM users WHERE username = $1", username)
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	return r.get(ctx, "SELECT id, username, email, password_hash, is_staff, created_at FROM users WHERE id = $1", id)
}

func (r *UserRepository) get(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsStaff, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
