package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ltcatalog/ltcatalog/internal/catalog"
	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
	"github.com/ltcatalog/ltcatalog/internal/metrics"
	"github.com/ltcatalog/ltcatalog/internal/store"
)

func init() {
	// Register metrics once for the entire test binary so that tests
	// checking /metrics output see the expected collectors.
	metrics.Register()
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:       "0.0.0.0",
			Port:       3000,
			CORSOrigin: "*",
		},
		Metadata: config.MetadataConfig{Engine: "sqlite"},
		Observability: config.ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// newTestServer creates a Server without a product store.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithConfig(t, testConfig())
}

// newTestServerWithConfig creates a Server without a product store using cfg.
func newTestServerWithConfig(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return srv
}

// newTestServerWithStore creates a Server backed by a temporary SQLite store.
func newTestServerWithStore(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "products.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return newTestServerWithProductStore(t, st)
}

func newTestServerWithProductStore(t *testing.T, st store.ProductStore) *Server {
	t.Helper()
	cfg := testConfig()
	svc := catalog.NewService(st, codegen.NewAllocator(codegen.Options{}), catalog.WithMetrics(true))
	srv, err := New(cfg, WithCatalog(svc))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return srv
}

// testRequest performs an HTTP request through the full middleware chain.
func testRequest(t *testing.T, srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// downStore is a product store whose Ping always fails.
type downStore struct {
	store.ProductStore
}

func (downStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := testRequest(t, srv, "GET", "/health", "")

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}

	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("GET /health Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET /health body unmarshal error: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("GET /health status = %q, want %q", body["status"], "ok")
	}
	if _, ok := body["checks"]; ok {
		t.Error("GET /health without a store should not report checks")
	}
}

func TestHealthEndpointWithStore(t *testing.T) {
	srv := newTestServerWithStore(t)
	rec := testRequest(t, srv, "GET", "/health", "")

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body HealthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET /health body unmarshal error: %v", err)
	}
	if body.Checks["metadata"].Status != "ok" {
		t.Errorf("metadata check = %+v, want ok", body.Checks["metadata"])
	}
}

func TestHealthEndpointStoreDown(t *testing.T) {
	srv := newTestServerWithProductStore(t, downStore{store.NewMemoryStore()})

	rec := testRequest(t, srv, "GET", "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want 503", rec.Code)
	}
	var body HealthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if check := body.Checks["metadata"]; check.Status != "error" || check.Error == "" {
		t.Errorf("metadata check = %+v, want error with message", check)
	}

	if rec := testRequest(t, srv, "GET", "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz status = %d, want 503", rec.Code)
	}
}

func TestAPIHealthEndpoint(t *testing.T) {
	tests := []struct {
		name string
		srv  func(t *testing.T) *Server
		want string
	}{
		{"no store", newTestServer, "No database configured"},
		{"sqlite", newTestServerWithStore, "sqlite connected"},
		{"down", func(t *testing.T) *Server {
			return newTestServerWithProductStore(t, downStore{store.NewMemoryStore()})
		}, "sqlite unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRequest(t, tt.srv(t), "GET", "/api/health", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("GET /api/health status = %d", rec.Code)
			}
			var body APIHealthBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != "ok" {
				t.Errorf("status = %q, want ok", body.Status)
			}
			if body.Database != tt.want {
				t.Errorf("database = %q, want %q", body.Database, tt.want)
			}
			if body.Timestamp == "" {
				t.Error("timestamp is empty")
			}
		})
	}
}

func TestHealthHeadEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := testRequest(t, srv, "HEAD", "/health", "")

	if rec.Code != http.StatusOK {
		t.Errorf("HEAD /health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHealthzAndReadyz(t *testing.T) {
	srv := newTestServerWithStore(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := testRequest(t, srv, "GET", path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
		if body := rec.Body.String(); body != "" {
			t.Errorf("GET %s body = %q, want empty", path, body)
		}
	}
}

func TestHealthCheckDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.HealthCheck = false
	srv := newTestServerWithConfig(t, cfg)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := testRequest(t, srv, "GET", path, ""); rec.Code == http.StatusOK {
			t.Errorf("GET %s with health_check disabled should not return 200", path)
		}
	}

	rec := testRequest(t, srv, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := testRequest(t, srv, "GET", "/openapi.json", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /openapi.json status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET /openapi.json body is not valid JSON: %v", err)
	}
	paths, ok := body["paths"].(map[string]any)
	if !ok {
		t.Fatal("openapi document has no paths")
	}
	for _, p := range []string{"/health", "/api/health"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi document missing %s", p)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServerWithStore(t)

	testRequest(t, srv, "GET", "/health", "")
	testRequest(t, srv, "POST", "/api/products", `{"link":"https://m.example","rmbPrice":1,"weight":1,"sellingPrice":1}`)

	rec := testRequest(t, srv, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	for _, name := range []string{
		"ltcatalog_http_requests_total",
		"ltcatalog_http_request_duration_seconds",
		"ltcatalog_code_allocations_total",
		"ltcatalog_product_operations_total",
		"ltcatalog_commit_attempts",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("GET /metrics does not contain %s", name)
		}
	}
	if !strings.Contains(body, `path="/api/products"`) {
		t.Error("GET /metrics missing normalized /api/products path label")
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Metrics = false
	srv := newTestServerWithConfig(t, cfg)

	rec := testRequest(t, srv, "GET", "/metrics", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics with metrics disabled status = %d, want 404", rec.Code)
	}
}

func TestCommonHeaders(t *testing.T) {
	srv := newTestServer(t)
	rec := testRequest(t, srv, "GET", "/health", "")

	reqID := rec.Header().Get("X-Request-Id")
	if len(reqID) != 16 {
		t.Errorf("X-Request-Id = %q, want 16 characters", reqID)
	}
	if rec.Header().Get("Date") == "" {
		t.Error("Missing Date header")
	}
	if rec.Header().Get("Server") != "ltcatalog" {
		t.Errorf("Server header = %q, want %q", rec.Header().Get("Server"), "ltcatalog")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServerWithStore(t)
	req := httptest.NewRequest("OPTIONS", "/api/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("Access-Control-Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestProductRoundTrip(t *testing.T) {
	srv := newTestServerWithStore(t)

	rec := testRequest(t, srv, "POST", "/api/products", `{"link":"https://item.taobao.com/item.htm?id=5","rmbPrice":"12","weight":"0.2","sellingPrice":"600"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ProductCode string `json:"productCode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if !codegen.Valid(created.ProductCode) {
		t.Fatalf("productCode %q is not a valid code", created.ProductCode)
	}

	escaped := strings.Replace(created.ProductCode, "#", "%23", 1)
	if rec := testRequest(t, srv, "GET", "/api/products/"+escaped, ""); rec.Code != http.StatusOK {
		t.Errorf("GET created product status = %d", rec.Code)
	}
	if rec := testRequest(t, srv, "DELETE", "/api/products/"+escaped, ""); rec.Code != http.StatusOK {
		t.Errorf("DELETE created product status = %d", rec.Code)
	}
	if rec := testRequest(t, srv, "GET", "/api/products/"+escaped, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted product status = %d, want 404", rec.Code)
	}
}

func TestProductRoutesWithoutStore(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/products", "/api/products/%23LT001"} {
		rec := testRequest(t, srv, "GET", path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := testRequest(t, srv, "GET", "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "NotFound" {
		t.Errorf("code = %q, want NotFound", body["code"])
	}
	if body["requestId"] == "" {
		t.Error("error body missing requestId")
	}
}
