package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"shop-svc/cart"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CartHandler struct {
	products *repository.ProductRepository
	carts    *cart.Store
	logger   *zap.Logger
}

func NewCartHandler(products *repository.ProductRepository, carts *cart.Store, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		products: products,
		carts:    carts,
		logger:   logger,
	}
}

func (h *CartHandler) CartDetail(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CartDetail")
	defer span.End()

	lines, err := h.carts.Session(middleware.SessionID(c)).Lines(ctx)
	if err != nil {
		internalError(c, h.logger, span, "Failed to read cart", err)
		return
	}

	render(c, http.StatusOK, cartPage(lines))
}

func (h *CartHandler) AddToCart(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "AddToCart")
	defer span.End()

	productID, err := strconv.Atoi(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	span.SetAttributes(attribute.Int("product.id", productID))

	var req models.CartAddRequest
	if err := c.ShouldBind(&req); err != nil {
		formErrors(c, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := h.products.GetByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !product.Available) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	err = h.carts.Session(middleware.SessionID(c)).Add(ctx, product, req.Quantity, req.Override)
	if errors.Is(err, cart.ErrInvalidQuantity) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"quantity": err.Error()}})
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to update cart", err)
		return
	}

	redirect(c, "/cart", levelSuccess, fmt.Sprintf("%s was added to your cart.", product.Name))
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "RemoveFromCart")
	defer span.End()

	productID, err := strconv.Atoi(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	if err := h.carts.Session(middleware.SessionID(c)).Remove(ctx, productID); err != nil {
		internalError(c, h.logger, span, "Failed to update cart", err)
		return
	}

	redirect(c, "/cart", levelInfo, "Item removed from your cart.")
}

func cartPage(lines []models.CartLine) gin.H {
	units := 0
	for _, line := range lines {
		units += line.Quantity
	}
	items := make([]gin.H, len(lines))
	for i, line := range lines {
		items[i] = gin.H{
			"product_id": line.ProductID,
			"name":       line.Name,
			"price":      line.Price,
			"quantity":   line.Quantity,
			"total":      line.Cost(),
		}
	}
	return gin.H{
		"items":       items,
		"count":       units,
		"total_price": cart.Total(lines),
	}
}
