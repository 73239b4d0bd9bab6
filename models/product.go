package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Product struct {
	ID          int             `json:"id"`
	CategoryID  int             `json:"category_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" form:"name" binding:"required,max=200"`
}

type CreateProductRequest struct {
	CategoryID  int             `json:"category_id" form:"category_id" binding:"required,gt=0"`
	Name        string          `json:"name" form:"name" binding:"required,max=200"`
	Description string          `json:"description" form:"description"`
	Price       decimal.Decimal `json:"price" form:"price"`
	Stock       int             `json:"stock" form:"stock" binding:"gte=0"`
	Available   *bool           `json:"available" form:"available"`
}

// UpdateProductRequest carries a partial update; nil fields are left as stored.
type UpdateProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,max=200"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" binding:"omitempty,gte=0"`
	Available   *bool            `json:"available"`
}
