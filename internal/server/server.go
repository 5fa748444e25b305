// Package server implements the ltcatalog HTTP server and route multiplexer.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ltcatalog/ltcatalog/internal/catalog"
	"github.com/ltcatalog/ltcatalog/internal/config"
	apierr "github.com/ltcatalog/ltcatalog/internal/errors"
	"github.com/ltcatalog/ltcatalog/internal/handlers"
)

// pingTimeout bounds the store round trip made by health probes.
const pingTimeout = 3 * time.Second

// Server is the ltcatalog HTTP server. It serves the product API under
// /api/products and the documented system endpoints.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	svc        *catalog.Service
	products   *handlers.ProductHandler
	httpServer *http.Server
}

// HealthCheck is the result of probing one dependency.
type HealthCheck struct {
	Status    string `json:"status" example:"ok" doc:"ok or error"`
	LatencyMS int64  `json:"latency_ms" doc:"Probe round trip in milliseconds"`
	Error     string `json:"error,omitempty" doc:"Probe failure, if any"`
}

// HealthBody is the JSON body returned by GET /health.
type HealthBody struct {
	Status string                 `json:"status" example:"ok" doc:"Health status"`
	Checks map[string]HealthCheck `json:"checks,omitempty" doc:"Per-dependency probes"`
}

// HealthOutput is the Huma output struct for GET /health.
type HealthOutput struct {
	Status int
	Body   HealthBody
}

// APIHealthBody is the JSON body returned by GET /api/health.
type APIHealthBody struct {
	Status    string `json:"status" example:"ok" doc:"Health status"`
	Database  string `json:"database" example:"sqlite connected" doc:"Product store state"`
	Timestamp string `json:"timestamp" example:"2026-01-01T00:00:00.000Z" doc:"Server time"`
}

// APIHealthOutput is the Huma output struct for GET /api/health.
type APIHealthOutput struct {
	Body APIHealthBody
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithCatalog sets the catalog service backing the product routes.
func WithCatalog(svc *catalog.Service) ServerOption {
	return func(s *Server) {
		s.svc = svc
	}
}

// New creates a Server with the given configuration and wires up all
// routes on the Chi router with Huma API. Without WithCatalog the product
// routes answer 503.
func New(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("ltcatalog API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.svc != nil {
		s.products = handlers.NewProductHandler(s.svc, cfg.Observability.Metrics)
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the router wrapped in the middleware chain:
// metricsMiddleware -> commonHeaders -> corsMiddleware -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = corsMiddleware(s.cfg.Server.CORSOrigin)(handler)
	handler = commonHeaders(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the ltcatalog server and, when enabled, a probe of the product store.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{Status: http.StatusOK, Body: HealthBody{Status: "ok"}}
		if !s.cfg.Observability.HealthCheck || s.svc == nil {
			return out, nil
		}
		check := s.probeStore(ctx)
		out.Body.Checks = map[string]HealthCheck{"metadata": check}
		if check.Status != "ok" {
			out.Status = http.StatusServiceUnavailable
			out.Body.Status = "degraded"
		}
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-api-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "API health",
		Description: "Reports whether the product store is reachable.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*APIHealthOutput, error) {
		return &APIHealthOutput{Body: APIHealthBody{
			Status:    "ok",
			Database:  s.databaseState(ctx),
			Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		}}, nil
	})

	// Huma only does one method per registration.
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	if s.cfg.Observability.HealthCheck {
		s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		s.router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			if s.svc == nil || s.probeStore(r.Context()).Status != "ok" {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	}

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	if s.products != nil {
		s.router.Mount("/api/products", s.products.Routes())
	} else {
		s.router.HandleFunc("/api/products*", func(w http.ResponseWriter, r *http.Request) {
			handlers.WriteError(w, r, apierr.ErrServiceUnavailable)
		})
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, r, apierr.ErrNotFound)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, r, apierr.ErrMethodNotAllowed)
	})
}

func (s *Server) probeStore(ctx context.Context) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := s.svc.Store().Ping(ctx)
	check := HealthCheck{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = "error"
		check.Error = err.Error()
	}
	return check
}

func (s *Server) databaseState(ctx context.Context) string {
	if s.svc == nil {
		return "No database configured"
	}
	engine := s.cfg.Metadata.Engine
	if s.probeStore(ctx).Status != "ok" {
		return engine + " unreachable"
	}
	return engine + " connected"
}
