// Package catalog pairs product code allocation with persistence.
//
// The allocator only sees a snapshot of the codes in use, so two concurrent
// creates can draw the same free code. The store's InsertIfAbsent settles
// the race; the loser re-reads the codes and allocates again.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/metrics"
	"github.com/ltcatalog/ltcatalog/internal/store"
	"github.com/ltcatalog/ltcatalog/internal/uid"
)

// DefaultCommitAttempts is the number of allocate+insert rounds per create.
const DefaultCommitAttempts = 3

var (
	// ErrInvalidProduct is returned when a create request is incomplete.
	ErrInvalidProduct = errors.New("missing required fields: link, rmbPrice, weight, sellingPrice")

	// ErrCommitConflict is returned when every allocated code was taken by
	// a concurrent writer before it could be stored.
	ErrCommitConflict = errors.New("product code conflicted on every commit attempt")

	// ErrInvalidCode is returned for lookups with a malformed product code.
	ErrInvalidCode = errors.New("invalid product code")
)

// NewProduct holds the caller-supplied fields of a product.
type NewProduct struct {
	Link         string
	RMBPrice     float64
	Weight       float64
	SellingPrice float64
}

// Validate reports ErrInvalidProduct unless the link is set and every
// price and the weight are finite and positive.
func (n NewProduct) Validate() error {
	if strings.TrimSpace(n.Link) == "" || !positive(n.RMBPrice) || !positive(n.Weight) || !positive(n.SellingPrice) {
		return ErrInvalidProduct
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Service creates and looks up products.
type Service struct {
	store          store.ProductStore
	allocator      *codegen.Allocator
	commitAttempts int
	now            func() time.Time
	newID          func() string
	metrics        bool
}

// Option configures a Service.
type Option func(*Service)

// WithCommitAttempts bounds the allocate+insert rounds per create.
func WithCommitAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.commitAttempts = n
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides the product record ID source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithMetrics enables Prometheus instrumentation. metrics.Register must
// have been called.
func WithMetrics(enabled bool) Option {
	return func(s *Service) {
		s.metrics = enabled
	}
}

// NewService returns a Service persisting to st and drawing codes from alloc.
func NewService(st store.ProductStore, alloc *codegen.Allocator, opts ...Option) *Service {
	s := &Service{
		store:          st,
		allocator:      alloc,
		commitAttempts: DefaultCommitAttempts,
		now:            time.Now,
		newID:          uid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying product store.
func (s *Service) Store() store.ProductStore {
	return s.store
}

// Create allocates a fresh product code and stores the product under it.
// It returns codegen.ErrExhausted when no free code was found and
// ErrCommitConflict when every allocated code lost a race.
func (s *Service) Create(ctx context.Context, in NewProduct) (*store.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.commitAttempts; attempt++ {
		existing, err := s.store.Codes(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading product codes: %w", err)
		}
		if s.metrics {
			metrics.CodesInUse.Set(float64(existing.Len()))
		}

		code, err := s.allocator.Allocate(existing)
		if err != nil {
			if errors.Is(err, codegen.ErrExhausted) {
				s.recordAllocation("exhausted", attempt)
				slog.Warn("Product code space exhausted",
					"codes_in_use", existing.Len(),
					"max_attempts", s.allocator.Options().MaxAttempts,
					"space_size", s.allocator.Options().SpaceSize,
				)
			}
			return nil, err
		}

		p := &store.Product{
			ID:           s.newID(),
			Code:         code,
			Link:         strings.TrimSpace(in.Link),
			RMBPrice:     in.RMBPrice,
			Weight:       in.Weight,
			SellingPrice: in.SellingPrice,
			CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
		}

		err = s.store.InsertIfAbsent(ctx, p)
		if err == nil {
			s.recordAllocation("success", attempt)
			slog.Info("Product created", "product_code", p.Code, "id", p.ID, "attempt", attempt)
			return p, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("storing product %s: %w", code, err)
		}
		slog.Debug("Product code taken concurrently, retrying", "product_code", code, "attempt", attempt)
	}

	s.recordAllocation("conflict", s.commitAttempts)
	return nil, ErrCommitConflict
}

// Get returns the product with the given code, or nil when none exists.
func (s *Service) Get(ctx context.Context, code string) (*store.Product, error) {
	if !codegen.Valid(code) {
		return nil, ErrInvalidCode
	}
	return s.store.GetProduct(ctx, code)
}

// List returns all products, newest first.
func (s *Service) List(ctx context.Context) ([]store.Product, error) {
	return s.store.ListProducts(ctx)
}

// Search returns products whose code or link contains query.
func (s *Service) Search(ctx context.Context, query string) ([]store.Product, error) {
	return s.store.SearchProducts(ctx, query)
}

// Delete removes the product with the given code. It returns
// store.ErrNotFound when none exists.
func (s *Service) Delete(ctx context.Context, code string) error {
	if !codegen.Valid(code) {
		return ErrInvalidCode
	}
	if err := s.store.DeleteProduct(ctx, code); err != nil {
		return err
	}
	slog.Info("Product deleted", "product_code", code)
	return nil
}

func (s *Service) recordAllocation(outcome string, attempts int) {
	if !s.metrics {
		return
	}
	metrics.AllocationsTotal.WithLabelValues(outcome).Inc()
	metrics.CommitAttempts.Observe(float64(attempts))
}
