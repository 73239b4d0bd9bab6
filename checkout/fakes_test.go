package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"shop-svc/models"
	"shop-svc/payment"
	"shop-svc/repository"
)

// memStore mirrors the repository semantics: one payment per order and
// status transitions guarded the same way as the SQL.
type memStore struct {
	mu       sync.Mutex
	orders   map[int]*models.Order
	payments map[int]*models.Payment
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{orders: map[int]*models.Order{}, payments: map[int]*models.Payment{}}
}

type memOrders struct{ *memStore }
type memPayments struct{ *memStore }

func (s memOrders) Create(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	o.CreatedAt = time.Now()
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s memOrders) Get(ctx context.Context, id int) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s memPayments) byOrder(orderID int) *models.Payment {
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return p
		}
	}
	return nil
}

func (s memPayments) Create(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byOrder(p.OrderID) != nil {
		return repository.ErrConflict
	}
	s.nextID++
	p.ID = s.nextID
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s memPayments) Upsert(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.byOrder(p.OrderID); existing != nil {
		if final(existing.Status) {
			return repository.ErrPaymentFinal
		}
		existing.Method = p.Method
		existing.Details = p.Details
		existing.Status = models.PaymentStatusPending
		existing.ProcessedAt = nil
		*p = *existing
		return nil
	}
	s.nextID++
	p.ID = s.nextID
	p.Status = models.PaymentStatusPending
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s memPayments) GetByOrder(ctx context.Context, orderID int) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.byOrder(orderID); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (s memPayments) GetByTransactionID(ctx context.Context, txn string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.TransactionID == txn {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func final(status models.PaymentStatus) bool {
	return status == models.PaymentStatusCompleted || status == models.PaymentStatusRefunded
}

func (s memPayments) SetStatus(ctx context.Context, id int, status models.PaymentStatus, txn string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || final(p.Status) {
		return false, nil
	}
	p.Status = status
	if txn != "" {
		p.TransactionID = txn
	}
	return true, nil
}

func (s memPayments) MarkCompleted(ctx context.Context, id int, txn string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if final(p.Status) {
		return false, nil
	}
	now := time.Now()
	p.Status = models.PaymentStatusCompleted
	p.ProcessedAt = &now
	if txn != "" {
		p.TransactionID = txn
	}
	s.orders[p.OrderID].Paid = true
	return true, nil
}

func (s memPayments) MarkRefunded(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if p.Status != models.PaymentStatusCompleted {
		return false, nil
	}
	p.Status = models.PaymentStatusRefunded
	s.orders[p.OrderID].Paid = false
	return true, nil
}

// racingPayments runs afterUpsert once the retry has written its payment,
// standing in for a webhook that lands while the processor is deciding.
type racingPayments struct {
	memPayments
	afterUpsert func(p *models.Payment)
}

func (r racingPayments) Upsert(ctx context.Context, p *models.Payment) error {
	if err := r.memPayments.Upsert(ctx, p); err != nil {
		return err
	}
	r.afterUpsert(p)
	return nil
}

type fakeCart struct {
	lines   []models.CartLine
	cleared bool
}

func (c *fakeCart) Lines(ctx context.Context) ([]models.CartLine, error) { return c.lines, nil }

func (c *fakeCart) Clear(ctx context.Context) error {
	c.cleared = true
	c.lines = nil
	return nil
}

type fakeGateway struct {
	createErr    error
	intentStatus string
	retrieveErr  error
	refundErr    error
	requests     []payment.IntentRequest
	retrieved    []string
	refunded     []string
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payment.Intent{ID: "pi_123", ClientSecret: "pi_123_secret_abc", Status: "requires_payment_method", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	g.retrieved = append(g.retrieved, id)
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	return &payment.Intent{ID: id, Status: g.intentStatus}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, intentID string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunded = append(g.refunded, intentID)
	return nil
}

type fakePublisher struct {
	events []models.OrderEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []string {
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

var errGatewayDown = errors.New("gateway down")
