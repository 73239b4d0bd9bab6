package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"shop-svc/circuitbreaker"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrGatewayUnavailable wraps failures reaching the gateway, including an open circuit.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type IntentRequest struct {
	Amount        int64
	Currency      string
	CustomerEmail string
	OrderID       int
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

const IntentSucceeded = "succeeded"

// Gateway is the remote card processor that hosts the payment page.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID string) error
}

type StripeGateway struct {
	sc      *client.API
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewStripeGateway builds a gateway on the stripe client. backends may be nil
// to use the default API endpoints.
func NewStripeGateway(secretKey string, backends *stripe.Backends, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &StripeGateway{sc: sc, breaker: breaker, logger: logger}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "StripeGateway.CreateIntent")
	defer span.End()
	span.SetAttributes(
		attribute.Int("order.id", req.OrderID),
		attribute.Int64("payment.amount", req.Amount),
		attribute.String("payment.currency", req.Currency),
	)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("customer_email", req.CustomerEmail)
	params.AddMetadata("order_id", strconv.Itoa(req.OrderID))

	var pi *stripe.PaymentIntent
	err := g.call(ctx, func() error {
		var err error
		pi, err = g.sc.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.intent_id", pi.ID))
	g.logger.Info("Payment intent created",
		zap.String("intent_id", pi.ID),
		zap.Int("order_id", req.OrderID),
		zap.Int64("amount", req.Amount),
	)
	return intentFrom(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "StripeGateway.RetrieveIntent")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent_id", id))

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err := g.call(ctx, func() error {
		var err error
		pi, err = g.sc.PaymentIntents.Get(id, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return intentFrom(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID string) error {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "StripeGateway.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent_id", intentID))

	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx

	err := g.call(ctx, func() error {
		_, err := g.sc.Refunds.New(params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	g.logger.Info("Payment refunded at gateway", zap.String("intent_id", intentID))
	return nil
}

// call runs fn behind the circuit breaker. Card errors and invalid requests
// are answers from the gateway, so they do not trip the circuit.
func (g *StripeGateway) call(ctx context.Context, fn func() error) error {
	var apiErr error
	err := g.breaker.Execute(ctx, func() error {
		err := fn()
		if isClientError(err) {
			apiErr = err
			return nil
		}
		return err
	})
	if apiErr != nil {
		return apiErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	return nil
}

func isClientError(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest
}

func intentFrom(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}
