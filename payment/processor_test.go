package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"shop-svc/models"

	"github.com/shopspring/decimal"
)

func fixedDraw(v float64) SimulatorOption {
	return WithDecisionSource(func() float64 { return v })
}

func fixedTxn(n int) SimulatorOption {
	return WithTransactionNumbers(func() int { return n })
}

func TestSimulator_Process(t *testing.T) {
	tests := []struct {
		name    string
		method  models.PaymentMethod
		draw    float64
		outcome Outcome
		txn     string
	}{
		{"card approved", models.PaymentMethodCreditCard, 0.89, OutcomeCompleted, "CC_123456"},
		{"card declined", models.PaymentMethodCreditCard, 0.90, OutcomeDeclined, ""},
		{"wallet approved", models.PaymentMethodPayPal, 0.94, OutcomeCompleted, "PP_123456"},
		{"wallet declined", models.PaymentMethodPayPal, 0.95, OutcomeDeclined, ""},
		{"bank transfer always processing", models.PaymentMethodBankTransfer, 0.99, OutcomeProcessing, "BT_123456"},
		{"gateway accepted", models.PaymentMethodStripe, 0.99, OutcomeCompleted, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulator(0.90, 0.95, 0, fixedDraw(tt.draw), fixedTxn(123456))
			res, err := sim.Process(context.Background(), tt.method)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Errorf("Expected outcome %s, got %s", tt.outcome, res.Outcome)
			}
			if res.TransactionID != tt.txn {
				t.Errorf("Expected transaction %q, got %q", tt.txn, res.TransactionID)
			}
		})
	}
}

func TestSimulator_DefaultTransactionNumbers(t *testing.T) {
	sim := NewSimulator(1, 1, 0)
	for i := 0; i < 50; i++ {
		res, _ := sim.Process(context.Background(), models.PaymentMethodCreditCard)
		if len(res.TransactionID) != len("CC_123456") {
			t.Fatalf("Expected six digit transaction id, got %q", res.TransactionID)
		}
	}
}

func TestSimulator_UnknownMethod(t *testing.T) {
	sim := NewSimulator(1, 1, 0)
	if _, err := sim.Process(context.Background(), "cash"); err == nil {
		t.Error("Expected error for unknown method")
	}
}

func TestSimulator_DelayHonoursCancellation(t *testing.T) {
	sim := NewSimulator(1, 1, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := sim.Process(ctx, models.PaymentMethodCreditCard); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"39.98", 3998},
		{"0.01", 1},
		{"10", 1000},
		{"19.999", 1999},
	}
	for _, tt := range tests {
		if got := ToMinorUnits(decimal.RequireFromString(tt.amount)); got != tt.want {
			t.Errorf("ToMinorUnits(%s) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}
