package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"shop-svc/models"
)

type Outcome string

const (
	// OutcomeCompleted means the payment went through immediately.
	OutcomeCompleted Outcome = "completed"
	// OutcomeProcessing means the payment was accepted but awaits manual verification.
	OutcomeProcessing Outcome = "processing"
	OutcomeDeclined   Outcome = "declined"
)

type Result struct {
	Outcome       Outcome
	TransactionID string
}

// Simulator stands in for the direct card, wallet and bank transfer
// processors. The decision source, the transaction numbers and the delay
// are injected so both branches can be forced.
type Simulator struct {
	cardRate   float64
	walletRate float64
	delay      time.Duration
	draw       func() float64
	txnNumber  func() int
}

type SimulatorOption func(*Simulator)

// WithDecisionSource replaces the uniform [0,1) draw.
func WithDecisionSource(draw func() float64) SimulatorOption {
	return func(s *Simulator) { s.draw = draw }
}

// WithTransactionNumbers replaces the six digit transaction number source.
func WithTransactionNumbers(next func() int) SimulatorOption {
	return func(s *Simulator) { s.txnNumber = next }
}

func NewSimulator(cardRate, walletRate float64, delay time.Duration, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		cardRate:   cardRate,
		walletRate: walletRate,
		delay:      delay,
		draw:       rand.Float64,
		txnNumber:  func() int { return 100000 + rand.IntN(900000) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process simulates one charge attempt. The gateway method is reported as
// completed here; real gateway charges are confirmed through the gateway.
func (s *Simulator) Process(ctx context.Context, method models.PaymentMethod) (Result, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	switch method {
	case models.PaymentMethodStripe:
		return Result{Outcome: OutcomeCompleted}, nil
	case models.PaymentMethodCreditCard:
		return s.attempt(s.cardRate, "CC"), nil
	case models.PaymentMethodPayPal:
		return s.attempt(s.walletRate, "PP"), nil
	case models.PaymentMethodBankTransfer:
		return Result{Outcome: OutcomeProcessing, TransactionID: s.transactionID("BT")}, nil
	default:
		return Result{}, fmt.Errorf("unsupported payment method %q", method)
	}
}

func (s *Simulator) attempt(rate float64, prefix string) Result {
	if s.draw() < rate {
		return Result{Outcome: OutcomeCompleted, TransactionID: s.transactionID(prefix)}
	}
	return Result{Outcome: OutcomeDeclined}
}

func (s *Simulator) transactionID(prefix string) string {
	return fmt.Sprintf("%s_%06d", prefix, s.txnNumber())
}
