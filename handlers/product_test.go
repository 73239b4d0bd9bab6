package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shop-svc/cache"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
)

func setupProductTest(t *testing.T) (*ProductHandler, *testEnv, *gin.Engine) {
	env := setupEnv(t, 0)
	handler := NewProductHandler(env.products, env.productCache(), env.logger)

	router := env.router(nil)
	router.GET("/products", handler.ListProducts)
	router.GET("/products/category/:slug", handler.ListProducts)
	router.GET("/products/:id/:slug", handler.ProductDetail)
	router.POST("/products", handler.CreateProduct)
	router.PUT("/products/:id", handler.UpdateProduct)
	router.POST("/categories", handler.CreateCategory)
	return handler, env, router
}

func productRow(rows *sqlmock.Rows, id, categoryID int, name, slug, price string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, categoryID, name, slug, "", price, true, 10, now, now)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestProductHandler_ListProducts(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("SELECT id, name, slug FROM categories ORDER BY name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug"}).
			AddRow(1, "Books", "books").
			AddRow(2, "Games", "games"))
	rows := sqlmock.NewRows(productRowColumns)
	productRow(rows, 1, 1, "Dune", "dune", "9.99")
	productRow(rows, 2, 2, "Go", "go", "24.50")
	env.mock.ExpectQuery("SELECT .+ FROM products WHERE available = TRUE ORDER BY name").
		WillReturnRows(rows)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, getRequest("/products"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if products, _ := body["products"].([]any); len(products) != 2 {
		t.Errorf("Expected 2 products, got %v", body["products"])
	}
	if categories, _ := body["categories"].([]any); len(categories) != 2 {
		t.Errorf("Expected 2 categories, got %v", body["categories"])
	}
	if body["category"] != nil {
		t.Errorf("Expected no category, got %v", body["category"])
	}
	env.expectationsMet(t)
}

func TestProductHandler_ListProducts_ByCategory(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("SELECT id, name, slug FROM categories WHERE slug = \\$1").
		WithArgs("games").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug"}).AddRow(2, "Games", "games"))
	env.mock.ExpectQuery("SELECT id, name, slug FROM categories ORDER BY name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug"}).AddRow(2, "Games", "games"))
	env.mock.ExpectQuery("SELECT .+ FROM products WHERE available = TRUE AND category_id = \\$1 ORDER BY name").
		WithArgs(2).
		WillReturnRows(productRow(sqlmock.NewRows(productRowColumns), 2, 2, "Go", "go", "24.50"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, getRequest("/products/category/games"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	category, _ := decodeBody(t, w)["category"].(map[string]any)
	if category["slug"] != "games" {
		t.Errorf("Expected games category, got %v", category)
	}
	env.expectationsMet(t)
}

func TestProductHandler_ListProducts_UnknownCategory(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("SELECT id, name, slug FROM categories WHERE slug = \\$1").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, getRequest("/products/category/nope"))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	env.expectationsMet(t)
}

func TestProductHandler_ProductDetail_CachesResult(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("SELECT .+ FROM products WHERE id = \\$1 AND slug = \\$2 AND available = TRUE").
		WithArgs(1, "dune").
		WillReturnRows(productRow(sqlmock.NewRows(productRowColumns), 1, 1, "Dune", "dune", "9.99"))
	env.mock.ExpectQuery("SELECT .+ FROM products WHERE category_id = \\$1 AND id <> \\$2").
		WithArgs(1, 1, relatedLimit).
		WillReturnRows(productRow(sqlmock.NewRows(productRowColumns), 3, 1, "Emma", "emma", "7.00"))

	// The second request must be served without touching the database.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, getRequest("/products/1/dune"))

		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status %d, got %d: %s", i, http.StatusOK, w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		product, _ := body["product"].(map[string]any)
		if product["price"] != "9.99" {
			t.Errorf("Request %d: expected price 9.99, got %v", i, product["price"])
		}
		if related, _ := body["related"].([]any); len(related) != 1 {
			t.Errorf("Request %d: expected 1 related product, got %v", i, body["related"])
		}
		form, _ := body["cart_form"].(map[string]any)
		if form["max_quantity"] != float64(20) {
			t.Errorf("Request %d: expected max quantity 20, got %v", i, form["max_quantity"])
		}
	}
	env.expectationsMet(t)
}

func TestProductHandler_ProductDetail_NotFound(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("SELECT .+ FROM products WHERE id = \\$1 AND slug = \\$2 AND available = TRUE").
		WithArgs(1, "wrong-slug").
		WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, getRequest("/products/1/wrong-slug"))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	env.expectationsMet(t)
}

func TestProductHandler_CreateCategory(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("INSERT INTO categories").
		WithArgs("Home Office", "home-office").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/categories", `{"name": "Home Office"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["slug"] != "home-office" {
		t.Errorf("Expected slug home-office, got %v", body["slug"])
	}
	env.expectationsMet(t)
}

func TestProductHandler_CreateCategory_Duplicate(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("INSERT INTO categories").
		WillReturnError(&pq.Error{Code: "23505"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/categories", `{"name": "Books"}`))

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
	env.expectationsMet(t)
}

func TestProductHandler_CreateProduct(t *testing.T) {
	_, env, router := setupProductTest(t)

	now := time.Now()
	env.mock.ExpectQuery("INSERT INTO products").
		WithArgs(1, "Dune Messiah", "dune-messiah", "", sqlmock.AnyArg(), true, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(9, now, now))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/products", `{"category_id": 1, "name": "Dune Messiah", "price": "12.50", "stock": 5}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["id"] != float64(9) || body["available"] != true {
		t.Errorf("Unexpected product %v", body)
	}
	env.expectationsMet(t)
}

func TestProductHandler_CreateProduct_InvalidPrice(t *testing.T) {
	tests := []struct {
		name  string
		price string
	}{
		{"zero", `"0"`},
		{"negative", `"-1.00"`},
		{"too precise", `"1.999"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env, router := setupProductTest(t)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, jsonRequest("POST", "/products", `{"category_id": 1, "name": "Dune", "price": `+tt.price+`}`))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			errs, _ := decodeBody(t, w)["errors"].(map[string]any)
			if errs["price"] == nil {
				t.Errorf("Expected price error, got %v", errs)
			}
			env.expectationsMet(t)
		})
	}
}

func TestProductHandler_UpdateProduct_InvalidatesCache(t *testing.T) {
	_, env, router := setupProductTest(t)
	ctx := context.Background()
	productCache := env.productCache()

	if err := productCache.Set(ctx, 1, productDetail{}); err != nil {
		t.Fatalf("Failed to prime cache: %v", err)
	}

	env.mock.ExpectQuery("SELECT .+ FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(productRow(sqlmock.NewRows(productRowColumns), 1, 1, "Dune", "dune", "9.99"))
	env.mock.ExpectQuery("UPDATE products SET").
		WithArgs(1, "Dune (Deluxe)", "dune-deluxe", "", sqlmock.AnyArg(), true, 10).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("PUT", "/products/1", `{"name": "Dune (Deluxe)"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var detail productDetail
	if err := productCache.Get(ctx, 1, &detail); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Expected cache entry to be removed, got %v", err)
	}
	env.expectationsMet(t)
}

func TestProductHandler_UpdateProduct_NotFound(t *testing.T) {
	_, env, router := setupProductTest(t)

	env.mock.ExpectQuery("SELECT .+ FROM products WHERE id = \\$1").
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("PUT", "/products/42", `{"stock": 3}`))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	env.expectationsMet(t)
}
