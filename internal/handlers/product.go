package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ltcatalog/ltcatalog/internal/catalog"
	"github.com/ltcatalog/ltcatalog/internal/codegen"
	apierr "github.com/ltcatalog/ltcatalog/internal/errors"
	"github.com/ltcatalog/ltcatalog/internal/metrics"
	"github.com/ltcatalog/ltcatalog/internal/store"
)

// maxBodySize caps create request bodies.
const maxBodySize = 64 << 10

// ProductHandler serves the /api/products routes.
type ProductHandler struct {
	svc     *catalog.Service
	metrics bool
}

// NewProductHandler creates a ProductHandler backed by svc. When
// withMetrics is set, operations are counted in
// metrics.ProductOperationsTotal.
func NewProductHandler(svc *catalog.Service, withMetrics bool) *ProductHandler {
	return &ProductHandler{svc: svc, metrics: withMetrics}
}

// Routes returns a router for the product endpoints, to be mounted at
// /api/products.
func (h *ProductHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateProduct)
	r.Get("/", h.ListProducts)
	r.Get("/search/{query}", h.SearchProducts)
	r.Get("/{code}", h.GetProduct)
	r.Delete("/{code}", h.DeleteProduct)
	return r
}

// createRequest is the body of POST /api/products. Numeric fields accept
// either JSON numbers or numeric strings, as HTML forms send them.
type createRequest struct {
	Link         string    `json:"link"`
	RMBPrice     flexFloat `json:"rmbPrice"`
	Weight       flexFloat `json:"weight"`
	SellingPrice flexFloat `json:"sellingPrice"`
}

// CreateResponse is returned after a product is saved.
type CreateResponse struct {
	Success     bool   `json:"success"`
	ProductCode string `json:"productCode"`
	ID          string `json:"id"`
	Message     string `json:"message"`
}

// MessageResponse carries a bare status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// errNonFinite rejects numeric strings such as "Inf" and "NaN", which JSON
// cannot carry back out in list or export responses.
var errNonFinite = errors.New("numeric field must be finite")

// flexFloat decodes a JSON number, a numeric string, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return errNonFinite
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// CreateProduct handles POST /api/products. It allocates a fresh product
// code and stores the product under it.
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.fail(w, r, "CreateProduct", apierr.ErrMalformedJSON)
		return
	}
	var req createRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.fail(w, r, "CreateProduct", apierr.ErrMalformedJSON)
			return
		}
	}

	p, err := h.svc.Create(r.Context(), catalog.NewProduct{
		Link:         req.Link,
		RMBPrice:     float64(req.RMBPrice),
		Weight:       float64(req.Weight),
		SellingPrice: float64(req.SellingPrice),
	})
	if err != nil {
		h.fail(w, r, "CreateProduct", h.mapError("CreateProduct", err))
		return
	}

	h.count("CreateProduct", "success")
	writeJSON(w, http.StatusOK, CreateResponse{
		Success:     true,
		ProductCode: p.Code,
		ID:          p.ID,
		Message:     "Product saved successfully",
	})
}

// ListProducts handles GET /api/products.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, r, "ListProducts", h.mapError("ListProducts", err))
		return
	}
	h.count("ListProducts", "success")
	writeJSON(w, http.StatusOK, products)
}

// GetProduct handles GET /api/products/{code}.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(r)
	if !ok {
		h.fail(w, r, "GetProduct", apierr.ErrInvalidProductCode)
		return
	}

	p, err := h.svc.Get(r.Context(), code)
	if err != nil {
		h.fail(w, r, "GetProduct", h.mapError("GetProduct", err))
		return
	}
	if p == nil {
		h.fail(w, r, "GetProduct", apierr.ErrProductNotFound)
		return
	}
	h.count("GetProduct", "success")
	writeJSON(w, http.StatusOK, p)
}

// SearchProducts handles GET /api/products/search/{query}. The match is a
// case-insensitive substring test on code and link.
func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query, err := url.PathUnescape(chi.URLParam(r, "query"))
	if err != nil {
		query = chi.URLParam(r, "query")
	}

	products, err := h.svc.Search(r.Context(), query)
	if err != nil {
		h.fail(w, r, "SearchProducts", h.mapError("SearchProducts", err))
		return
	}
	h.count("SearchProducts", "success")
	writeJSON(w, http.StatusOK, products)
}

// DeleteProduct handles DELETE /api/products/{code}.
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(r)
	if !ok {
		h.fail(w, r, "DeleteProduct", apierr.ErrInvalidProductCode)
		return
	}

	if err := h.svc.Delete(r.Context(), code); err != nil {
		h.fail(w, r, "DeleteProduct", h.mapError("DeleteProduct", err))
		return
	}
	h.count("DeleteProduct", "success")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Product deleted successfully"})
}

// codeParam extracts the {code} URL parameter. Clients send "#LT001" as
// "%23LT001"; a bare "LT001" is accepted too.
func codeParam(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "code")
	code, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "LT") {
		code = "#" + code
	}
	return code, codegen.Valid(code)
}

// mapError converts service and store errors to API errors, logging the
// ones that indicate a server-side failure.
func (h *ProductHandler) mapError(op string, err error) *apierr.APIError {
	switch {
	case errors.Is(err, catalog.ErrInvalidProduct):
		return apierr.ErrMissingFields
	case errors.Is(err, catalog.ErrInvalidCode):
		return apierr.ErrInvalidProductCode
	case errors.Is(err, store.ErrNotFound):
		return apierr.ErrProductNotFound
	case errors.Is(err, codegen.ErrExhausted):
		return apierr.ErrAllocationExhausted
	case errors.Is(err, catalog.ErrCommitConflict):
		slog.Warn("Product create gave up after repeated code conflicts", "operation", op)
		return apierr.ErrCommitConflict
	default:
		slog.Error("Product store error", "operation", op, "error", err)
		return apierr.ErrDatabase
	}
}

func (h *ProductHandler) fail(w http.ResponseWriter, r *http.Request, op string, e *apierr.APIError) {
	h.count(op, "error")
	WriteError(w, r, e)
}

func (h *ProductHandler) count(op, status string) {
	if h.metrics {
		metrics.ProductOperationsTotal.WithLabelValues(op, status).Inc()
	}
}
