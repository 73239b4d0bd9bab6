package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"shop-svc/cart"
	"shop-svc/checkout"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/payment"
	"shop-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var paymentMethods = []gin.H{
	{"value": models.PaymentMethodStripe, "label": "Credit/Debit Card (Stripe)"},
	{"value": models.PaymentMethodCreditCard, "label": "Credit Card"},
	{"value": models.PaymentMethodPayPal, "label": "PayPal"},
	{"value": models.PaymentMethodBankTransfer, "label": "Bank Transfer"},
}

type OrderHandler struct {
	orders         *repository.OrderRepository
	payments       *repository.PaymentRepository
	checkout       *checkout.Service
	carts          *cart.Store
	publishableKey string
	baseURL        string
	logger         *zap.Logger
}

func NewOrderHandler(
	orders *repository.OrderRepository,
	payments *repository.PaymentRepository,
	svc *checkout.Service,
	carts *cart.Store,
	publishableKey string,
	baseURL string,
	logger *zap.Logger,
) *OrderHandler {
	return &OrderHandler{
		orders:         orders,
		payments:       payments,
		checkout:       svc,
		carts:          carts,
		publishableKey: publishableKey,
		baseURL:        baseURL,
		logger:         logger,
	}
}

type orderCreateRequest struct {
	models.OrderContact
	payment.Form
}

func orderPath(id int) string {
	return fmt.Sprintf("/orders/%d", id)
}

func retryPath(id int) string {
	return fmt.Sprintf("/orders/%d/retry", id)
}

func stripePath(id int, action string) string {
	return fmt.Sprintf("/orders/%d/stripe/%s", id, action)
}

// CheckoutPage shows the cart being ordered and the payment methods.
func (h *OrderHandler) CheckoutPage(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CheckoutPage")
	defer span.End()

	lines, err := h.carts.Session(middleware.SessionID(c)).Lines(ctx)
	if err != nil {
		internalError(c, h.logger, span, "Failed to read cart", err)
		return
	}
	if len(lines) == 0 {
		redirect(c, "/cart", levelError, "Your cart is empty.")
		return
	}

	page := cartPage(lines)
	page["payment_methods"] = paymentMethods
	page["stripe_publishable_key"] = h.publishableKey
	render(c, http.StatusOK, page)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	sessionCart := h.carts.Session(middleware.SessionID(c))
	lines, err := sessionCart.Lines(ctx)
	if err != nil {
		internalError(c, h.logger, span, "Failed to read cart", err)
		return
	}
	if len(lines) == 0 {
		redirect(c, "/cart", levelError, "Your cart is empty.")
		return
	}

	var req orderCreateRequest
	if err := c.ShouldBind(&req); err != nil {
		formErrors(c, err)
		return
	}

	var userID *int
	if id, ok := middleware.CurrentIdentity(c); ok {
		userID = &id.UserID
	}

	result, err := h.checkout.PlaceOrder(ctx, sessionCart, req.OrderContact, req.Form, userID)
	if errors.Is(err, checkout.ErrEmptyCart) {
		redirect(c, "/cart", levelError, "Your cart is empty.")
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to place order", err)
		return
	}

	order := result.Order
	span.SetAttributes(
		attribute.Int("order.id", order.ID),
		attribute.String("checkout.outcome", string(result.Outcome)),
	)

	switch result.Outcome {
	case checkout.OutcomePaid:
		redirect(c, orderPath(order.ID), levelSuccess,
			fmt.Sprintf("Order %d has been created and payment processed successfully!", order.ID))
	case checkout.OutcomeProcessing:
		redirect(c, orderPath(order.ID), levelInfo,
			fmt.Sprintf("Order %d has been created. It will be confirmed once your bank transfer is verified.", order.ID))
	case checkout.OutcomeAwaitingGateway:
		render(c, http.StatusOK, gin.H{
			"order":                  order,
			"payment":                result.Payment,
			"client_secret":          result.Intent.ClientSecret,
			"stripe_publishable_key": h.publishableKey,
			"success_url":            h.baseURL + stripePath(order.ID, "success"),
			"cancel_url":             h.baseURL + stripePath(order.ID, "cancel"),
		})
	case checkout.OutcomeGatewayError:
		redirect(c, retryPath(order.ID), levelError,
			fmt.Sprintf("Payment initialization failed: %v", result.GatewayErr))
	default:
		redirect(c, retryPath(order.ID), levelError, "Payment processing failed. Please try again.")
	}
}

// accessibleOrder loads the :id order for the current visitor. Anonymous
// visitors go to login; other owners' orders and unknown ids are reported
// alike. It returns nil once a response has been written.
func (h *OrderHandler) accessibleOrder(c *gin.Context, span trace.Span, anonymousMsg, deniedMsg string) *models.Order {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		redirect(c, "/accounts/login", levelError, anonymousMsg)
		return nil
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		redirect(c, "/products", levelError, deniedMsg)
		return nil
	}
	span.SetAttributes(attribute.Int("order.id", orderID))

	order, err := h.orders.Get(c.Request.Context(), orderID)
	if errors.Is(err, repository.ErrNotFound) {
		redirect(c, "/products", levelError, deniedMsg)
		return nil
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch order", err)
		return nil
	}
	if !order.OwnedBy(identity.UserID) && !identity.IsStaff {
		redirect(c, "/products", levelError, deniedMsg)
		return nil
	}
	return order
}

func (h *OrderHandler) OrderDetail(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "OrderDetail")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	order := h.accessibleOrder(c, span, "Please log in to view your order.", "You do not have permission to view this order.")
	if order == nil {
		return
	}

	p, err := h.payments.GetByOrder(ctx, order.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		internalError(c, h.logger, span, "Failed to fetch payment", err)
		return
	}

	render(c, http.StatusOK, gin.H{
		"order":   order,
		"payment": p,
	})
}

func (h *OrderHandler) OrderHistory(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "OrderHistory")
	defer span.End()

	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		redirect(c, "/accounts/login", levelError, "Please log in to view your order history.")
		return
	}

	orders, err := h.orders.ListByUser(ctx, identity.UserID, 0)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch orders", err)
		return
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	render(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) RetryPage(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "RetryPage")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	order := h.accessibleOrder(c, span, "Please log in to retry payment.", "You do not have permission to access this order.")
	if order == nil {
		return
	}
	if order.Paid {
		redirect(c, orderPath(order.ID), levelInfo, "This order has already been paid.")
		return
	}

	render(c, http.StatusOK, gin.H{
		"order":           order,
		"payment_methods": paymentMethods,
	})
}

func (h *OrderHandler) RetryPayment(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "RetryPayment")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	order := h.accessibleOrder(c, span, "Please log in to retry payment.", "You do not have permission to access this order.")
	if order == nil {
		return
	}
	if order.Paid {
		redirect(c, orderPath(order.ID), levelInfo, "This order has already been paid.")
		return
	}

	var form payment.Form
	if err := c.ShouldBind(&form); err != nil {
		formErrors(c, err)
		return
	}

	result, err := h.checkout.RetryPayment(ctx, order, form)
	if errors.Is(err, checkout.ErrAlreadyPaid) {
		redirect(c, orderPath(order.ID), levelInfo, "This order has already been paid.")
		return
	}
	if errors.Is(err, checkout.ErrRefunded) {
		redirect(c, orderPath(order.ID), levelError, "This order's payment was refunded and cannot be retried.")
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to retry payment", err)
		return
	}

	switch result.Outcome {
	case checkout.OutcomePaid:
		redirect(c, orderPath(order.ID), levelSuccess, "Payment processed successfully!")
	case checkout.OutcomeProcessing:
		redirect(c, orderPath(order.ID), levelInfo, "Your bank transfer is awaiting verification.")
	default:
		render(c, http.StatusPaymentRequired, gin.H{
			"order":           order,
			"payment_methods": paymentMethods,
		}, Flash{Level: levelError, Message: "Payment processing failed. Please try again."})
	}
}

func (h *OrderHandler) orderForGateway(c *gin.Context, span trace.Span) *models.Order {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return nil
	}
	span.SetAttributes(attribute.Int("order.id", orderID))

	order, err := h.orders.Get(c.Request.Context(), orderID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return nil
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch order", err)
		return nil
	}
	return order
}

// StripeSuccess is where the hosted payment page returns the customer.
func (h *OrderHandler) StripeSuccess(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "StripeSuccess")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	order := h.orderForGateway(c, span)
	if order == nil {
		return
	}

	result, err := h.checkout.ConfirmGatewayPayment(ctx, order, h.carts.Session(middleware.SessionID(c)))
	if errors.Is(err, checkout.ErrPaymentNotFound) {
		redirect(c, retryPath(order.ID), levelError, "Payment record not found.")
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to confirm payment", err)
		return
	}

	if result.Outcome == checkout.OutcomePaid {
		redirect(c, orderPath(order.ID), levelSuccess,
			fmt.Sprintf("Payment successful! Order #%d has been confirmed.", order.ID))
		return
	}
	redirect(c, retryPath(order.ID), levelError, "Payment verification failed. Please contact support.")
}

func (h *OrderHandler) StripeCancel(c *gin.Context) {
	_, span := otel.Tracer("shop-service").Start(c.Request.Context(), "StripeCancel")
	defer span.End()

	order := h.orderForGateway(c, span)
	if order == nil {
		return
	}
	redirect(c, retryPath(order.ID), levelWarning, "Payment was cancelled. You can try again.")
}
