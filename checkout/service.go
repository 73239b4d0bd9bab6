package checkout

import (
	"context"
	"errors"
	"fmt"

	"shop-svc/metrics"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/payment"
	"shop-svc/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrAlreadyPaid     = errors.New("order has already been paid")
	ErrRefunded        = errors.New("order payment has been refunded")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrNotVerifiable   = errors.New("payment is not awaiting verification")
	ErrNotRefundable   = errors.New("payment is not refundable")
)

type Orders interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id int) (*models.Order, error)
}

type Payments interface {
	Create(ctx context.Context, p *models.Payment) error
	Upsert(ctx context.Context, p *models.Payment) error
	GetByOrder(ctx context.Context, orderID int) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	SetStatus(ctx context.Context, id int, status models.PaymentStatus, transactionID string) (bool, error)
	MarkCompleted(ctx context.Context, id int, transactionID string) (bool, error)
	MarkRefunded(ctx context.Context, id int) (bool, error)
}

type Processor interface {
	Process(ctx context.Context, method models.PaymentMethod) (payment.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

// Cart is the part of the session cart checkout consumes.
type Cart interface {
	Lines(ctx context.Context) ([]models.CartLine, error)
	Clear(ctx context.Context) error
}

type Outcome string

const (
	OutcomePaid            Outcome = "paid"
	OutcomeProcessing      Outcome = "processing"
	OutcomeAwaitingGateway Outcome = "awaiting_gateway"
	OutcomeFailed          Outcome = "failed"
	OutcomeGatewayError    Outcome = "gateway_error"
)

type Result struct {
	Order   *models.Order
	Payment *models.Payment
	Outcome Outcome
	// Intent is set for OutcomeAwaitingGateway.
	Intent *payment.Intent
	// GatewayErr carries the remote failure for OutcomeGatewayError.
	GatewayErr error
}

type Deps struct {
	Orders    Orders
	Payments  Payments
	Processor Processor
	Gateway   payment.Gateway
	Publisher Publisher
	Currency  string
}

// Service runs order placement and every payment state transition.
type Service struct {
	orders    Orders
	payments  Payments
	processor Processor
	gateway   payment.Gateway
	publisher Publisher
	currency  string
	logger    *zap.Logger
}

func NewService(deps Deps, logger *zap.Logger) *Service {
	return &Service{
		orders:    deps.Orders,
		payments:  deps.Payments,
		processor: deps.Processor,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		currency:  deps.Currency,
		logger:    logger,
	}
}

// PlaceOrder turns the cart into an order and dispatches its first payment.
// Input forms are expected to be validated by the caller.
func (s *Service) PlaceOrder(ctx context.Context, cart Cart, contact models.OrderContact, form payment.Form, userID *int) (*Result, error) {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "PlaceOrder")
	defer span.End()

	lines, err := cart.Lines(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	method := form.PaymentMethod()
	order := &models.Order{
		UserID:        userID,
		FirstName:     contact.FirstName,
		LastName:      contact.LastName,
		Email:         contact.Email,
		Address:       contact.Address,
		PostalCode:    contact.PostalCode,
		City:          contact.City,
		PaymentMethod: method,
	}
	for _, line := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Price:       line.Price,
			Quantity:    line.Quantity,
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("order.id", order.ID),
		attribute.String("payment.method", string(method)),
	)
	metrics.RecordOrderCreated(string(method))
	s.logger.Info("Order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.String("payment_method", string(method)),
		zap.String("total", order.TotalCost().StringFixed(2)),
	)
	s.publish(ctx, models.EventOrderCreated, order, nil)

	if method == models.PaymentMethodStripe {
		return s.startGatewayPayment(ctx, order)
	}

	p := &models.Payment{
		OrderID: order.ID,
		Method:  method,
		Status:  models.PaymentStatusPending,
		Amount:  order.TotalCost(),
		Details: form.Details(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := s.process(ctx, order, p)
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomePaid || result.Outcome == OutcomeProcessing {
		s.clearCart(ctx, cart)
	}
	return result, nil
}

func (s *Service) startGatewayPayment(ctx context.Context, order *models.Order) (*Result, error) {
	total := order.TotalCost()
	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		Amount:        payment.ToMinorUnits(total),
		Currency:      s.currency,
		CustomerEmail: order.Email,
		OrderID:       order.ID,
	})
	if err != nil {
		metrics.RecordPaymentProcessed(string(models.PaymentMethodStripe), "gateway_error")
		s.logger.Error("Failed to create payment intent",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", order.ID),
			zap.Error(err),
		)
		return &Result{Order: order, Outcome: OutcomeGatewayError, GatewayErr: err}, nil
	}

	p := &models.Payment{
		OrderID:       order.ID,
		Method:        models.PaymentMethodStripe,
		Status:        models.PaymentStatusPending,
		TransactionID: intent.ID,
		Amount:        total,
		Details:       map[string]string{},
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.String("transaction_id", intent.ID),
	)
	return &Result{Order: order, Payment: p, Outcome: OutcomeAwaitingGateway, Intent: intent}, nil
}

// RetryPayment re-runs the simulated processors for an unpaid order. The
// order's single payment row is reused, so repeated retries overwrite it.
// The gateway method is not re-dispatched to intent creation here.
func (s *Service) RetryPayment(ctx context.Context, order *models.Order, form payment.Form) (*Result, error) {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "RetryPayment")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", order.ID))

	if order.Paid {
		return nil, ErrAlreadyPaid
	}

	p := &models.Payment{
		OrderID: order.ID,
		Method:  form.PaymentMethod(),
		Amount:  order.TotalCost(),
		Details: form.Details(),
	}
	err := s.payments.Upsert(ctx, p)
	if errors.Is(err, repository.ErrPaymentFinal) {
		// The order view was stale: a webhook or staff action settled it.
		return nil, s.finalPaymentError(ctx, order)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return s.process(ctx, order, p)
}

func (s *Service) finalPaymentError(ctx context.Context, order *models.Order) error {
	current, err := s.payments.GetByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	s.logger.Info("Retry rejected for settled payment",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.String("status", string(current.Status)),
	)
	if current.Status == models.PaymentStatusRefunded {
		return ErrRefunded
	}
	order.Paid = true
	return ErrAlreadyPaid
}

func (s *Service) process(ctx context.Context, order *models.Order, p *models.Payment) (*Result, error) {
	res, err := s.processor.Process(ctx, p.Method)
	if err != nil {
		return nil, fmt.Errorf("failed to process payment: %w", err)
	}

	var applied bool
	var status models.PaymentStatus
	switch res.Outcome {
	case payment.OutcomeCompleted:
		status = models.PaymentStatusCompleted
		applied, err = s.payments.MarkCompleted(ctx, p.ID, res.TransactionID)
	case payment.OutcomeProcessing:
		status = models.PaymentStatusProcessing
		applied, err = s.payments.SetStatus(ctx, p.ID, status, res.TransactionID)
	default:
		status = models.PaymentStatusFailed
		applied, err = s.payments.SetStatus(ctx, p.ID, status, "")
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.settled(ctx, order, p)
	}

	p.Status = status
	if res.TransactionID != "" {
		p.TransactionID = res.TransactionID
	}
	result := &Result{Order: order, Payment: p, Outcome: outcomeFor(status)}
	if status == models.PaymentStatusCompleted {
		order.Paid = true
	}

	metrics.RecordPaymentProcessed(string(p.Method), string(p.Status))
	s.logger.Info("Payment processed",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("payment_id", p.ID),
		zap.String("status", string(p.Status)),
		zap.String("transaction_id", p.TransactionID),
	)
	s.publish(ctx, paymentEvent(p.Status), order, p)
	return result, nil
}

// settled reports a payment that another writer finalised while it was being
// processed. The stored state wins; nothing is recorded or published.
func (s *Service) settled(ctx context.Context, order *models.Order, p *models.Payment) (*Result, error) {
	current, err := s.payments.GetByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	*p = *current
	if p.Status == models.PaymentStatusCompleted {
		order.Paid = true
	}
	s.logger.Info("Payment already settled",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("payment_id", p.ID),
		zap.String("status", string(p.Status)),
	)
	return &Result{Order: order, Payment: p, Outcome: outcomeFor(p.Status)}, nil
}

func outcomeFor(status models.PaymentStatus) Outcome {
	switch status {
	case models.PaymentStatusCompleted:
		return OutcomePaid
	case models.PaymentStatusProcessing:
		return OutcomeProcessing
	default:
		return OutcomeFailed
	}
}

// HandleGatewayEvent applies a verified webhook event. Events for unknown
// transactions and unhandled event types are ignored.
func (s *Service) HandleGatewayEvent(ctx context.Context, event *payment.GatewayEvent) error {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "HandleGatewayEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("transaction.id", event.IntentID),
	)

	if event.Type != payment.EventIntentSucceeded && event.Type != payment.EventIntentFailed {
		metrics.RecordWebhookEvent(event.Type, "ignored")
		return nil
	}

	p, err := s.payments.GetByTransactionID(ctx, event.IntentID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordWebhookEvent(event.Type, "unknown_transaction")
		s.logger.Info("Webhook for unknown transaction",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_type", event.Type),
			zap.String("transaction_id", event.IntentID),
		)
		return nil
	}
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		span.RecordError(err)
		return err
	}

	var applied bool
	if event.Type == payment.EventIntentSucceeded {
		applied, err = s.payments.MarkCompleted(ctx, p.ID, "")
		p.Status = models.PaymentStatusCompleted
	} else {
		applied, err = s.payments.SetStatus(ctx, p.ID, models.PaymentStatusFailed, "")
		p.Status = models.PaymentStatusFailed
	}
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		span.RecordError(err)
		return err
	}
	if !applied {
		metrics.RecordWebhookEvent(event.Type, "duplicate")
		return nil
	}

	metrics.RecordWebhookEvent(event.Type, "applied")
	s.logger.Info("Webhook applied",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.Type),
		zap.Int("order_id", p.OrderID),
		zap.Int("payment_id", p.ID),
	)
	if order, err := s.orders.Get(ctx, p.OrderID); err == nil {
		s.publish(ctx, paymentEvent(p.Status), order, p)
	}
	return nil
}

// ConfirmGatewayPayment checks the intent behind the order's gateway payment
// after the customer returns from the hosted page.
func (s *Service) ConfirmGatewayPayment(ctx context.Context, order *models.Order, cart Cart) (*Result, error) {
	ctx, span := otel.Tracer("shop-service").Start(ctx, "ConfirmGatewayPayment")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", order.ID))

	p, err := s.payments.GetByOrder(ctx, order.ID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.Method != models.PaymentMethodStripe) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Order: order, Payment: p, Outcome: OutcomeFailed}
	if p.Status == models.PaymentStatusCompleted {
		order.Paid = true
		result.Outcome = OutcomePaid
		s.clearCart(ctx, cart)
		return result, nil
	}
	if p.TransactionID == "" || p.Status == models.PaymentStatusRefunded {
		return result, nil
	}
	intent, err := s.gateway.RetrieveIntent(ctx, p.TransactionID)
	if err != nil {
		s.logger.Error("Failed to retrieve payment intent",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", order.ID),
			zap.String("transaction_id", p.TransactionID),
			zap.Error(err),
		)
		result.GatewayErr = err
		return result, nil
	}
	if intent.Status != payment.IntentSucceeded {
		return result, nil
	}

	applied, err := s.payments.MarkCompleted(ctx, p.ID, "")
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatusCompleted
	order.Paid = true
	result.Outcome = OutcomePaid
	s.clearCart(ctx, cart)

	if applied {
		metrics.RecordPaymentProcessed(string(p.Method), string(p.Status))
		s.publish(ctx, models.EventPaymentCompleted, order, p)
	}
	return result, nil
}

// VerifyBankTransfer completes a bank transfer that staff matched against
// the bank statement.
func (s *Service) VerifyBankTransfer(ctx context.Context, orderID int) (*models.Payment, error) {
	order, p, err := s.orderPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Method != models.PaymentMethodBankTransfer || p.Status != models.PaymentStatusProcessing {
		return nil, ErrNotVerifiable
	}

	applied, err := s.payments.MarkCompleted(ctx, p.ID, "")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrNotVerifiable
	}
	p.Status = models.PaymentStatusCompleted
	order.Paid = true

	metrics.RecordPaymentProcessed(string(p.Method), string(p.Status))
	s.logger.Info("Bank transfer verified",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("payment_id", p.ID),
	)
	s.publish(ctx, models.EventPaymentCompleted, order, p)
	return p, nil
}

// RefundPayment refunds a completed payment, through the gateway first when
// the payment was taken there.
func (s *Service) RefundPayment(ctx context.Context, orderID int) (*models.Payment, error) {
	order, p, err := s.orderPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCompleted {
		return nil, ErrNotRefundable
	}

	if p.Method == models.PaymentMethodStripe && p.TransactionID != "" {
		if err := s.gateway.Refund(ctx, p.TransactionID); err != nil {
			return nil, fmt.Errorf("failed to refund through gateway: %w", err)
		}
	}

	applied, err := s.payments.MarkRefunded(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrNotRefundable
	}
	p.Status = models.PaymentStatusRefunded
	order.Paid = false

	metrics.RecordPaymentProcessed(string(p.Method), string(p.Status))
	s.logger.Info("Payment refunded",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("payment_id", p.ID),
	)
	s.publish(ctx, models.EventPaymentRefunded, order, p)
	return p, nil
}

func (s *Service) orderPayment(ctx context.Context, orderID int) (*models.Order, *models.Payment, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.payments.GetByOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return order, p, nil
}

func (s *Service) clearCart(ctx context.Context, cart Cart) {
	if err := cart.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear cart",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Error(err),
		)
	}
}

// publish is best effort; the order and payment are already stored.
func (s *Service) publish(ctx context.Context, eventType string, order *models.Order, p *models.Payment) {
	if s.publisher == nil {
		return
	}
	event := models.NewOrderEvent(eventType, order)
	if p != nil {
		event.PaymentMethod = p.Method
		event.PaymentStatus = p.Status
		event.TransactionID = p.TransactionID
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_type", eventType),
			zap.Int("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func paymentEvent(status models.PaymentStatus) string {
	switch status {
	case models.PaymentStatusCompleted:
		return models.EventPaymentCompleted
	case models.PaymentStatusProcessing:
		return models.EventPaymentProcessing
	case models.PaymentStatusRefunded:
		return models.EventPaymentRefunded
	default:
		return models.EventPaymentFailed
	}
}
