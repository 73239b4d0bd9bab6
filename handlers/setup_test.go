package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"shop-svc/auth"
	"shop-svc/cache"
	"shop-svc/cart"
	"shop-svc/checkout"
	"shop-svc/middleware"
	"shop-svc/payment"
	"shop-svc/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	testSession       = "6f1c1c55-8c1f-4a8e-9d3c-0a4f9a0f5b11"
	testWebhookSecret = "whsec_test_secret"
)

var (
	orderRowColumns   = []string{"id", "user_id", "first_name", "last_name", "email", "address", "postal_code", "city", "paid", "payment_method", "created_at", "updated_at"}
	itemRowColumns    = []string{"id", "order_id", "product_id", "product_name", "price", "quantity"}
	productRowColumns = []string{"id", "category_id", "name", "slug", "description", "price", "available", "stock", "created_at", "updated_at"}
	paymentRowColumns = []string{"id", "order_id", "payment_method", "status", "transaction_id", "amount", "payment_details", "created_at", "updated_at", "processed_at"}
)

type testEnv struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	rdb     *redis.Client
	carts   *cart.Store
	gateway *stubGateway
	logger  *zap.Logger

	orders   *repository.OrderRepository
	payments *repository.PaymentRepository
	products *repository.ProductRepository
	users    *repository.UserRepository
	checkout *checkout.Service
}

// setupEnv builds repositories over sqlmock and carts over miniredis. The
// simulated processor always draws draw, with no delay.
func setupEnv(t *testing.T, draw float64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	env := &testEnv{
		db:       db,
		mock:     mock,
		rdb:      rdb,
		carts:    cart.NewStore(rdb, time.Hour),
		gateway:  &stubGateway{status: payment.IntentSucceeded},
		logger:   logger,
		orders:   repository.NewOrderRepository(db),
		payments: repository.NewPaymentRepository(db),
		products: repository.NewProductRepository(db),
		users:    repository.NewUserRepository(db),
	}
	env.checkout = checkout.NewService(checkout.Deps{
		Orders:   env.orders,
		Payments: env.payments,
		Processor: payment.NewSimulator(0.90, 0.95, 0,
			payment.WithDecisionSource(func() float64 { return draw }),
			payment.WithTransactionNumbers(func() int { return 123456 }),
		),
		Gateway:  env.gateway,
		Currency: "usd",
	}, logger)
	return env
}

func (e *testEnv) productCache() *cache.ProductCache {
	return cache.NewProductCache(e.rdb, 5*time.Minute)
}

// router returns an engine with the session middleware and, when id is set,
// an authenticated caller.
func (e *testEnv) router(id *auth.Identity) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Session(time.Hour))
	if id != nil {
		router.Use(func(c *gin.Context) {
			middleware.SetIdentity(c, id)
			c.Next()
		})
	}
	return router
}

func (e *testEnv) expectationsMet(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

type stubGateway struct {
	status    string
	createErr error
	refundErr error
}

func (g *stubGateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payment.Intent{ID: "pi_123", ClientSecret: "pi_123_secret", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *stubGateway) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	return &payment.Intent{ID: id, Status: g.status}, nil
}

func (g *stubGateway) Refund(ctx context.Context, intentID string) error {
	return g.refundErr
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: testSession})
	return req
}

func getRequest(target string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: testSession})
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body %q: %v", w.Body.String(), err)
	}
	return body
}

// assertRedirect checks a 303 to location carrying message.
func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location, message string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusSeeOther, w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Expected redirect to %s, got %s", location, got)
	}
	if body := decodeBody(t, w); body["message"] != message {
		t.Errorf("Expected message %q, got %q", message, body["message"])
	}
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
