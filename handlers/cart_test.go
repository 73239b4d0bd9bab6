package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func setupCartTest(t *testing.T) (*testEnv, *gin.Engine) {
	env := setupEnv(t, 0)
	handler := NewCartHandler(env.products, env.carts, env.logger)

	router := env.router(nil)
	router.GET("/cart", handler.CartDetail)
	router.POST("/cart/add/:product_id", handler.AddToCart)
	router.POST("/cart/remove/:product_id", handler.RemoveFromCart)
	return env, router
}

func expectProduct(env *testEnv, id int, available bool) {
	now := time.Now()
	env.mock.ExpectQuery("SELECT .+ FROM products WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(id, 1, "Dune", "dune", "", "9.99", available, 10, now, now))
}

func TestCartHandler_AddToCart(t *testing.T) {
	env, router := setupCartTest(t)
	expectProduct(env, 1, true)
	expectProduct(env, 1, true)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, formRequest("POST", "/cart/add/1", url.Values{"quantity": {"3"}}))
		assertRedirect(t, w, "/cart", "Dune was added to your cart.")
	}

	lines, err := env.carts.Session(testSession).Lines(context.Background())
	if err != nil {
		t.Fatalf("Failed to read cart: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 6 {
		t.Errorf("Expected one line of 6 units, got %+v", lines)
	}
	env.expectationsMet(t)
}

func TestCartHandler_AddToCart_Override(t *testing.T) {
	env, router := setupCartTest(t)
	expectProduct(env, 1, true)
	expectProduct(env, 1, true)

	router.ServeHTTP(httptest.NewRecorder(), formRequest("POST", "/cart/add/1", url.Values{"quantity": {"5"}}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, formRequest("POST", "/cart/add/1", url.Values{"quantity": {"2"}, "override": {"true"}}))
	assertRedirect(t, w, "/cart", "Dune was added to your cart.")

	n, _ := env.carts.Session(testSession).Len(context.Background())
	if n != 2 {
		t.Errorf("Expected 2 units after override, got %d", n)
	}
	env.expectationsMet(t)
}

func TestCartHandler_AddToCart_DefaultQuantity(t *testing.T) {
	env, router := setupCartTest(t)
	expectProduct(env, 1, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, formRequest("POST", "/cart/add/1", url.Values{}))
	assertRedirect(t, w, "/cart", "Dune was added to your cart.")

	n, _ := env.carts.Session(testSession).Len(context.Background())
	if n != 1 {
		t.Errorf("Expected 1 unit, got %d", n)
	}
	env.expectationsMet(t)
}

func TestCartHandler_AddToCart_InvalidQuantity(t *testing.T) {
	env, router := setupCartTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, formRequest("POST", "/cart/add/1", url.Values{"quantity": {"21"}}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	errs, _ := decodeBody(t, w)["errors"].(map[string]any)
	if errs["quantity"] == nil {
		t.Errorf("Expected quantity error, got %v", errs)
	}
	env.expectationsMet(t)
}

func TestCartHandler_AddToCart_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		expect func(env *testEnv)
	}{
		{"unknown", func(env *testEnv) {
			env.mock.ExpectQuery("SELECT .+ FROM products WHERE id = \\$1").WithArgs(1).WillReturnError(sql.ErrNoRows)
		}},
		{"not available", func(env *testEnv) { expectProduct(env, 1, false) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, router := setupCartTest(t)
			tt.expect(env)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, formRequest("POST", "/cart/add/1", url.Values{"quantity": {"1"}}))

			if w.Code != http.StatusNotFound {
				t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
			}
			env.expectationsMet(t)
		})
	}
}

func TestCartHandler_RemoveAndDetail(t *testing.T) {
	env, router := setupCartTest(t)
	fillCart(t, env)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, getRequest("/cart"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := decodeBody(t, w)
	if body["total_price"] != "39.98" || body["count"] != float64(2) {
		t.Errorf("Unexpected cart page %v", body)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, formRequest("POST", "/cart/remove/1", url.Values{}))
	assertRedirect(t, w, "/cart", "Item removed from your cart.")

	// Removing an absent product is not an error.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, formRequest("POST", "/cart/remove/1", url.Values{}))
	assertRedirect(t, w, "/cart", "Item removed from your cart.")

	n, _ := env.carts.Session(testSession).Len(context.Background())
	if n != 0 {
		t.Errorf("Expected empty cart, got %d units", n)
	}
}
