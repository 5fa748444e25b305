// Package store defines the product store interface and its implementations.
// Every implementation enforces product code uniqueness at write time;
// InsertIfAbsent is the authoritative guard the allocator relies on.
package store

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
)

// timeFormat is the ISO 8601 format used for timestamps in text columns.
const timeFormat = "2006-01-02T15:04:05.000Z"

var (
	// ErrConflict is returned by InsertIfAbsent when the product code is
	// already taken.
	ErrConflict = errors.New("product code already exists")

	// ErrNotFound is returned by DeleteProduct when no product has the code.
	ErrNotFound = errors.New("product not found")
)

// Product is a catalog entry identified externally by its product code.
type Product struct {
	ID           string    `json:"id"`
	Code         string    `json:"product_code"`
	Link         string    `json:"link"`
	RMBPrice     float64   `json:"rmb_price"`
	Weight       float64   `json:"weight"`
	SellingPrice float64   `json:"selling_price"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProductStore persists products. Implementations must be safe for
// concurrent use.
type ProductStore interface {
	io.Closer

	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error

	// CodeExists reports whether a product with the given code exists.
	CodeExists(ctx context.Context, code string) (bool, error)

	// Codes returns a snapshot of all codes currently in use.
	Codes(ctx context.Context) (codegen.Set, error)

	// InsertIfAbsent stores p unless its code is taken, in which case it
	// returns ErrConflict and stores nothing.
	InsertIfAbsent(ctx context.Context, p *Product) error

	// GetProduct returns the product with the given code, or nil, nil.
	GetProduct(ctx context.Context, code string) (*Product, error)

	// ListProducts returns all products, newest first.
	ListProducts(ctx context.Context) ([]Product, error)

	// SearchProducts returns products whose code or link contains query,
	// case-insensitively, newest first.
	SearchProducts(ctx context.Context, query string) ([]Product, error)

	// DeleteProduct removes the product with the given code. It returns
	// ErrNotFound if there is none.
	DeleteProduct(ctx context.Context, code string) error
}

// sortNewestFirst orders products by CreatedAt descending, then by code for
// a stable order within the same millisecond.
func sortNewestFirst(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].Code < products[j].Code
	})
}

// matches reports whether p's code or link contains query, ignoring case.
// Used by stores without a server-side LIKE.
func matches(p *Product, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(p.Code), q) ||
		strings.Contains(strings.ToLower(p.Link), q)
}

// filterProducts keeps the products matching query.
func filterProducts(all []Product, query string) []Product {
	out := make([]Product, 0, len(all))
	for i := range all {
		if matches(&all[i], query) {
			out = append(out, all[i])
		}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
