package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ltcatalog/ltcatalog/internal/catalog"
	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/store"
)

// newTestRouter mounts a ProductHandler backed by a temporary SQLite store.
func newTestRouter(t *testing.T, alloc *codegen.Allocator) (http.Handler, store.ProductStore) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if alloc == nil {
		alloc = codegen.NewAllocator(codegen.Options{})
	}
	h := NewProductHandler(catalog.NewService(st, alloc), false)

	r := chi.NewRouter()
	r.Mount("/api/products", h.Routes())
	return r, st
}

// fixedAllocator always draws n, so every allocation proposes Format(n+1).
func fixedAllocator(n int) *codegen.Allocator {
	return codegen.NewAllocatorWithSource(codegen.Options{MaxAttempts: 3}, func() codegen.Source {
		return constSource(n)
	})
}

type constSource int

func (c constSource) IntN(n int) int { return int(c) % n }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateProduct(t *testing.T) {
	h, st := newTestRouter(t, fixedAllocator(41))

	w := do(t, h, "POST", "/api/products",
		`{"link":"https://item.taobao.com/item.htm?id=9","rmbPrice":25.5,"weight":"0.3","sellingPrice":"950"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	resp := decode[CreateResponse](t, w)
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.ProductCode != "#LT042" {
		t.Errorf("productCode = %q, want #LT042", resp.ProductCode)
	}
	if resp.ID == "" {
		t.Error("id is empty")
	}
	if resp.Message != "Product saved successfully" {
		t.Errorf("message = %q", resp.Message)
	}

	p, err := st.GetProduct(t.Context(), "#LT042")
	if err != nil || p == nil {
		t.Fatalf("stored product = %v, %v", p, err)
	}
	if p.Weight != 0.3 || p.SellingPrice != 950 || p.RMBPrice != 25.5 {
		t.Errorf("stored values = %v/%v/%v", p.RMBPrice, p.Weight, p.SellingPrice)
	}
}

func TestCreateProductValidation(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"empty body", "", http.StatusBadRequest, "MissingFields"},
		{"missing link", `{"rmbPrice":1,"weight":1,"sellingPrice":1}`, http.StatusBadRequest, "MissingFields"},
		{"zero weight", `{"link":"x","rmbPrice":1,"weight":0,"sellingPrice":1}`, http.StatusBadRequest, "MissingFields"},
		{"empty string price", `{"link":"x","rmbPrice":"","weight":1,"sellingPrice":1}`, http.StatusBadRequest, "MissingFields"},
		{"not json", `link=x`, http.StatusBadRequest, "MalformedJSON"},
		{"non-numeric price", `{"link":"x","rmbPrice":"ten","weight":1,"sellingPrice":1}`, http.StatusBadRequest, "MalformedJSON"},
		{"infinite price", `{"link":"x","rmbPrice":"Inf","weight":1,"sellingPrice":1}`, http.StatusBadRequest, "MalformedJSON"},
		{"NaN weight", `{"link":"x","rmbPrice":1,"weight":"NaN","sellingPrice":1}`, http.StatusBadRequest, "MalformedJSON"},
		{"overflowing price", `{"link":"x","rmbPrice":1,"weight":1,"sellingPrice":"1e999"}`, http.StatusBadRequest, "MalformedJSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/products", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.wantCode, w.Body.String())
			}
			resp := decode[ErrorResponse](t, w)
			if resp.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantErr)
			}
		})
	}

	w := do(t, h, "GET", "/api/products", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("list after rejected creates: status = %d, body = %q", w.Code, w.Body.String())
	}

	w = do(t, h, "POST", "/api/products", `{"link":"x"}`)
	if msg := decode[ErrorResponse](t, w).Message; msg != "Missing required fields: link, rmbPrice, weight, sellingPrice" {
		t.Errorf("message = %q", msg)
	}
}

func TestCreateProductExhausted(t *testing.T) {
	h, _ := newTestRouter(t, fixedAllocator(0))
	body := `{"link":"x","rmbPrice":1,"weight":1,"sellingPrice":1}`

	if w := do(t, h, "POST", "/api/products", body); w.Code != http.StatusOK {
		t.Fatalf("first create status = %d", w.Code)
	}
	// The allocator can only ever propose #LT001.
	w := do(t, h, "POST", "/api/products", body)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if code := decode[ErrorResponse](t, w).Code; code != "AllocationExhausted" {
		t.Errorf("code = %q, want AllocationExhausted", code)
	}
}

func TestGetProduct(t *testing.T) {
	h, _ := newTestRouter(t, fixedAllocator(6))
	do(t, h, "POST", "/api/products", `{"link":"https://a.example","rmbPrice":1,"weight":2,"sellingPrice":3}`)

	for _, target := range []string{"/api/products/%23LT007", "/api/products/LT007"} {
		w := do(t, h, "GET", target, "")
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d; body = %s", target, w.Code, w.Body.String())
		}
		p := decode[map[string]any](t, w)
		if p["product_code"] != "#LT007" {
			t.Errorf("GET %s product_code = %v", target, p["product_code"])
		}
		for _, field := range []string{"id", "link", "rmb_price", "weight", "selling_price", "created_at"} {
			if _, ok := p[field]; !ok {
				t.Errorf("GET %s missing field %q", target, field)
			}
		}
	}

	w := do(t, h, "GET", "/api/products/%23LT008", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if msg := decode[ErrorResponse](t, w).Message; msg != "Product not found" {
		t.Errorf("message = %q", msg)
	}

	if w := do(t, h, "GET", "/api/products/banana", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid code status = %d, want 400", w.Code)
	}
}

func TestListAndSearchProducts(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	w := do(t, h, "GET", "/api/products", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("empty list body = %s, want []", body)
	}

	for _, link := range []string{"https://item.taobao.com/1", "https://detail.1688.com/2", "https://item.taobao.com/3"} {
		w := do(t, h, "POST", "/api/products", `{"link":"`+link+`","rmbPrice":1,"weight":1,"sellingPrice":1}`)
		if w.Code != http.StatusOK {
			t.Fatalf("create %s status = %d", link, w.Code)
		}
	}

	list := decode[[]store.Product](t, do(t, h, "GET", "/api/products", ""))
	if len(list) != 3 {
		t.Errorf("list returned %d products, want 3", len(list))
	}

	found := decode[[]store.Product](t, do(t, h, "GET", "/api/products/search/TAOBAO", ""))
	if len(found) != 2 {
		t.Errorf("search returned %d products, want 2", len(found))
	}

	found = decode[[]store.Product](t, do(t, h, "GET", "/api/products/search/%23LT", ""))
	if len(found) != 3 {
		t.Errorf("search by code prefix returned %d products, want 3", len(found))
	}
}

func TestDeleteProduct(t *testing.T) {
	h, st := newTestRouter(t, fixedAllocator(98))
	do(t, h, "POST", "/api/products", `{"link":"x","rmbPrice":1,"weight":1,"sellingPrice":1}`)

	w := do(t, h, "DELETE", "/api/products/%23LT099", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", w.Code, w.Body.String())
	}
	if msg := decode[MessageResponse](t, w).Message; msg != "Product deleted successfully" {
		t.Errorf("message = %q", msg)
	}
	if exists, _ := st.CodeExists(t.Context(), "#LT099"); exists {
		t.Error("product still stored after delete")
	}

	if w := do(t, h, "DELETE", "/api/products/%23LT099", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{`12.5`, 12.5, false},
		{`"12.5"`, 12.5, false},
		{`" 7 "`, 7, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
		{`"Inf"`, 0, true},
		{`"-Infinity"`, 0, true},
		{`"NaN"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var f flexFloat
		err := json.Unmarshal([]byte(tt.in), &f)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && float64(f) != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, f, tt.want)
		}
	}
}
