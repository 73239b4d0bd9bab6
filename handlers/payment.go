package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"shop-svc/checkout"
	"shop-svc/metrics"
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

const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	checkout *checkout.Service
	verifier *payment.WebhookVerifier
	logger   *zap.Logger
}

func NewPaymentHandler(svc *checkout.Service, verifier *payment.WebhookVerifier, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout: svc,
		verifier: verifier,
		logger:   logger,
	}
}

// StripeWebhook receives gateway events. It is unauthenticated; the
// signature header is the only check.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "StripeWebhook")
	defer span.End()

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "invalid_payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	event, err := h.verifier.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("Rejected webhook",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Error(err),
		)
		if errors.Is(err, payment.ErrInvalidSignature) {
			metrics.RecordWebhookEvent("unknown", "invalid_signature")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
		metrics.RecordWebhookEvent("unknown", "invalid_payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	)

	if err := h.checkout.HandleGatewayEvent(ctx, event); err != nil {
		internalError(c, h.logger, span, "Failed to apply webhook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// VerifyPayment lets staff confirm a bank transfer that has arrived.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "VerifyPayment")
	defer span.End()

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	span.SetAttributes(attribute.Int("order.id", orderID))

	p, err := h.checkout.VerifyBankTransfer(ctx, orderID)
	if err != nil {
		h.staffError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RefundPayment lets staff refund a completed payment.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "RefundPayment")
	defer span.End()

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	span.SetAttributes(attribute.Int("order.id", orderID))

	p, err := h.checkout.RefundPayment(ctx, orderID)
	if err != nil {
		h.staffError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) staffError(c *gin.Context, span trace.Span, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, checkout.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
	case errors.Is(err, checkout.ErrNotVerifiable):
		c.JSON(http.StatusConflict, gin.H{"error": "Only a processing bank transfer can be verified"})
	case errors.Is(err, checkout.ErrNotRefundable):
		c.JSON(http.StatusConflict, gin.H{"error": "Only a " + string(models.PaymentStatusCompleted) + " payment can be refunded"})
	case errors.Is(err, payment.ErrGatewayUnavailable):
		span.RecordError(err)
		h.logger.Error("Gateway refund failed", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
	default:
		span.RecordError(err)
		h.logger.Error("Staff payment operation failed", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
