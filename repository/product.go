package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-svc/models"
)

const productColumns = "id, category_id, name, slug, description, price, available, stock, created_at, updated_at"

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, slug FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *ProductRepository) CategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var c models.Category
	err := r.db.QueryRowContext(ctx, "SELECT id, name, slug FROM categories WHERE slug = $1", slug).
		Scan(&c.ID, &c.Name, &c.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (r *ProductRepository) CreateCategory(ctx context.Context, name, slug string) (*models.Category, error) {
	c := models.Category{Name: name, Slug: slug}
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id",
		name, slug,
	).Scan(&c.ID)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &c, nil
}

// ListAvailable returns available products, optionally restricted to one category.
func (r *ProductRepository) ListAvailable(ctx context.Context, categoryID *int) ([]models.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE available = TRUE"
	args := []any{}
	if categoryID != nil {
		query += " AND category_id = $1"
		args = append(args, *categoryID)
	}
	query += " ORDER BY name"
	return r.queryProducts(ctx, query, args...)
}

// GetAvailable looks a product up by id and slug, as the detail page does.
func (r *ProductRepository) GetAvailable(ctx context.Context, id int, slug string) (*models.Product, error) {
	return r.queryProduct(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1 AND slug = $2 AND available = TRUE",
		id, slug)
}

func (r *ProductRepository) GetByID(ctx context.Context, id int) (*models.Product, error) {
	return r.queryProduct(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
}

// Related returns other available products of the same category.
func (r *ProductRepository) Related(ctx context.Context, p *models.Product, limit int) ([]models.Product, error) {
	return r.queryProducts(ctx,
		"SELECT "+productColumns+" FROM products WHERE category_id = $1 AND id <> $2 AND available = TRUE ORDER BY name LIMIT $3",
		p.CategoryID, p.ID, limit)
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO products (category_id, name, slug, description, price, available, stock) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at",
		p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Available, p.Stock,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	err := r.db.QueryRowContext(ctx,
		"UPDATE products SET name = $2, slug = $3, description = $4, price = $5, available = $6, stock = $7, updated_at = NOW() WHERE id = $1 RETURNING updated_at",
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.Available, p.Stock,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (r *ProductRepository) queryProduct(ctx context.Context, query string, args ...any) (*models.Product, error) {
	var p models.Product
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Available, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Available, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
