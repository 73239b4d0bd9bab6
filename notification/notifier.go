package notification

import (
	"context"
	"fmt"
	"html"

	"shop-svc/models"
)

// Compose renders the customer email for an order event. The boolean is false
// for event types that do not notify anyone.
func Compose(event models.OrderEvent) (Email, bool) {
	name := event.FirstName
	if name == "" {
		name = "customer"
	}

	var subject, body string
	switch event.EventType {
	case models.EventOrderCreated:
		subject = fmt.Sprintf("Order #%d received", event.OrderID)
		body = fmt.Sprintf("Your order #%d has been placed. Total: %s.", event.OrderID, event.TotalCost.StringFixed(2))
	case models.EventPaymentCompleted:
		subject = fmt.Sprintf("Payment confirmed for order #%d", event.OrderID)
		body = fmt.Sprintf("We received your payment of %s for order #%d.", event.TotalCost.StringFixed(2), event.OrderID)
		if event.TransactionID != "" {
			body += fmt.Sprintf(" Transaction ID: %s.", event.TransactionID)
		}
	case models.EventPaymentProcessing:
		subject = fmt.Sprintf("Awaiting bank transfer for order #%d", event.OrderID)
		body = fmt.Sprintf("Order #%d will ship once your transfer of %s (reference %s) arrives.",
			event.OrderID, event.TotalCost.StringFixed(2), event.TransactionID)
	case models.EventPaymentFailed:
		subject = fmt.Sprintf("Payment failed for order #%d", event.OrderID)
		body = fmt.Sprintf("Payment for order #%d failed. Please try again or contact support.", event.OrderID)
	case models.EventPaymentRefunded:
		subject = fmt.Sprintf("Refund issued for order #%d", event.OrderID)
		body = fmt.Sprintf("Your payment of %s for order #%d has been refunded.", event.TotalCost.StringFixed(2), event.OrderID)
	default:
		return Email{}, false
	}
	if event.Email == "" {
		return Email{}, false
	}

	text := fmt.Sprintf("Dear %s,\n\n%s\n", name, body)
	return Email{
		To:      event.Email,
		Subject: subject,
		Text:    text,
		HTML:    fmt.Sprintf("<p>Dear %s,</p><p>%s</p>", html.EscapeString(name), html.EscapeString(body)),
	}, true
}

type Notifier struct {
	mailer Mailer
}

func NewNotifier(mailer Mailer) *Notifier {
	return &Notifier{mailer: mailer}
}

// Notify sends the email for event. It reports whether anything was sent.
func (n *Notifier) Notify(ctx context.Context, event models.OrderEvent) (bool, error) {
	email, ok := Compose(event)
	if !ok {
		return false, nil
	}
	if err := n.mailer.Send(ctx, email); err != nil {
		return false, err
	}
	return true, nil
}
