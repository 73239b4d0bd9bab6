package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent"}}}`, eventType, intentID))
}

func TestWebhookVerifier_Parse_Success(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret)
	payload := intentEvent(EventIntentSucceeded, "pi_123")

	event, err := v.Parse(payload, signPayload(t, payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if event.Type != EventIntentSucceeded {
		t.Errorf("Expected type %s, got %s", EventIntentSucceeded, event.Type)
	}
	if event.IntentID != "pi_123" {
		t.Errorf("Expected intent pi_123, got %s", event.IntentID)
	}
}

func TestWebhookVerifier_Parse_BadSignature(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret)
	payload := intentEvent(EventIntentSucceeded, "pi_123")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"garbage header", "not-a-signature"},
		{"wrong secret", signPayload(t, payload, "whsec_other", time.Now())},
		{"too old", signPayload(t, payload, testWebhookSecret, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Parse(payload, tt.header); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestWebhookVerifier_Parse_MalformedPayload(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret)
	payload := []byte(`{"id": "evt_1", "type": `)

	if _, err := v.Parse(payload, signPayload(t, payload, testWebhookSecret, time.Now())); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Expected ErrInvalidPayload, got %v", err)
	}
}
