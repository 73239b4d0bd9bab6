package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"shop-svc/cache"
	"shop-svc/cart"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/repository"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const relatedLimit = 4

type ProductHandler struct {
	products *repository.ProductRepository
	cache    *cache.ProductCache
	logger   *zap.Logger
}

func NewProductHandler(products *repository.ProductRepository, productCache *cache.ProductCache, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		cache:    productCache,
		logger:   logger,
	}
}

type productDetail struct {
	Product models.Product   `json:"product"`
	Related []models.Product `json:"related"`
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "ListProducts")
	defer span.End()

	var category *models.Category
	if categorySlug := c.Param("slug"); categorySlug != "" {
		cat, err := h.products.CategoryBySlug(ctx, categorySlug)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		if err != nil {
			internalError(c, h.logger, span, "Failed to fetch category", err)
			return
		}
		category = cat
	}

	categories, err := h.products.ListCategories(ctx)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch categories", err)
		return
	}

	var categoryID *int
	if category != nil {
		categoryID = &category.ID
	}
	products, err := h.products.ListAvailable(ctx, categoryID)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch products", err)
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	render(c, http.StatusOK, gin.H{
		"category":   category,
		"categories": categories,
		"products":   products,
	})
}

func (h *ProductHandler) ProductDetail(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "ProductDetail")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	productSlug := c.Param("slug")
	span.SetAttributes(attribute.Int("product.id", id))

	// Try to get from cache first
	var detail productDetail
	if err := h.cache.Get(ctx, id, &detail); err == nil && detail.Product.Slug == productSlug && detail.Product.Available {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		h.renderDetail(c, detail)
		return
	} else if err != nil && !errors.Is(err, cache.ErrMiss) {
		h.logger.Warn("Product cache read failed", zap.Int("product_id", id), zap.Error(err))
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	product, err := h.products.GetAvailable(ctx, id, productSlug)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	related, err := h.products.Related(ctx, product, relatedLimit)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch related products", err)
		return
	}

	detail = productDetail{Product: *product, Related: related}
	if err := h.cache.Set(ctx, id, detail); err != nil {
		h.logger.Warn("Product cache write failed", zap.Int("product_id", id), zap.Error(err))
	}
	h.renderDetail(c, detail)
}

func (h *ProductHandler) renderDetail(c *gin.Context, detail productDetail) {
	render(c, http.StatusOK, gin.H{
		"product": detail.Product,
		"related": detail.Related,
		"cart_form": gin.H{
			"min_quantity": cart.MinQuantity,
			"max_quantity": cart.MaxQuantity,
		},
	})
}

func (h *ProductHandler) CreateCategory(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateCategory")
	defer span.End()

	var req models.CreateCategoryRequest
	if err := c.ShouldBind(&req); err != nil {
		formErrors(c, err)
		return
	}

	category, err := h.products.CreateCategory(ctx, req.Name, slug.Make(req.Name))
	if errors.Is(err, repository.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Category already exists"})
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to create category", err)
		return
	}

	h.logger.Info("Category created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("category_id", category.ID),
		zap.String("slug", category.Slug),
	)
	c.JSON(http.StatusCreated, category)
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	var req models.CreateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		formErrors(c, err)
		return
	}
	if msg := priceError(req.Price); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"price": msg}})
		return
	}

	product := models.Product{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Available:   req.Available == nil || *req.Available,
		Stock:       req.Stock,
	}
	if err := h.products.Create(ctx, &product); err != nil {
		internalError(c, h.logger, span, "Failed to create product", err)
		return
	}

	span.SetAttributes(attribute.Int("product.id", product.ID))
	h.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", product.ID),
	)
	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	span.SetAttributes(attribute.Int("product.id", id))

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		formErrors(c, err)
		return
	}
	if req.Price != nil {
		if msg := priceError(*req.Price); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"price": msg}})
			return
		}
	}

	product, err := h.products.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	if req.Name != nil {
		product.Name = *req.Name
		product.Slug = slug.Make(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Available != nil {
		product.Available = *req.Available
	}

	if err := h.products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to update product", err)
		return
	}

	// Invalidate cache
	if err := h.cache.Delete(ctx, id); err != nil {
		h.logger.Warn("Product cache invalidation failed", zap.Int("product_id", id), zap.Error(err))
	}

	h.logger.Info("Product updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", id),
	)
	c.JSON(http.StatusOK, product)
}
