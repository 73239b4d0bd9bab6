package handlers

import (
	"net/http"

	"shop-svc/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func internalError(c *gin.Context, logger *zap.Logger, span trace.Span, msg string, err error) {
	span.RecordError(err)
	logger.Error(msg, zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// priceError checks a catalog price: positive, at most two decimal places
// and ten digits in total.
func priceError(price decimal.Decimal) string {
	if !price.IsPositive() {
		return "Ensure this value is greater than 0."
	}
	if !price.Equal(price.Round(2)) {
		return "Ensure that there are no more than 2 decimal places."
	}
	if price.GreaterThanOrEqual(decimal.New(1, 8)) {
		return "Ensure that there are no more than 10 digits in total."
	}
	return ""
}
