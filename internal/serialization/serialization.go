// Package serialization handles product export/import between a product
// store and a portable JSON document.
package serialization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ltcatalog/ltcatalog/internal/catalog"
	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/store"
	"github.com/ltcatalog/ltcatalog/internal/uid"
)

const (
	Version       = "0.1.0"
	ExportVersion = 1
)

// timeFormat matches the timestamps the stores write.
const timeFormat = "2006-01-02T15:04:05.000Z"

// ExportOptions configures what to export.
type ExportOptions struct {
	// Engine names the source store in the envelope.
	Engine string
}

// ImportOptions configures how to import.
type ImportOptions struct {
	// Replace deletes every existing product before importing. Otherwise
	// products whose code is already taken are skipped.
	Replace bool
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	Imported int
	Skipped  int
	Deleted  int
	Warnings []string
}

// Envelope identifies an export document.
type Envelope struct {
	Version       int    `json:"version"`
	ExportedAt    string `json:"exported_at"`
	Source        string `json:"source"`
	Engine        string `json:"engine,omitempty"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

// schemaVersioner is implemented by stores that track a schema version.
type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (int, error)
}

// Document is the top-level export format.
type Document struct {
	Export   Envelope        `json:"ltcatalog_export"`
	Products []ProductRecord `json:"products"`
}

// ProductRecord is one exported product.
type ProductRecord struct {
	ID           string  `json:"id"`
	ProductCode  string  `json:"product_code"`
	Link         string  `json:"link"`
	RMBPrice     float64 `json:"rmb_price"`
	Weight       float64 `json:"weight"`
	SellingPrice float64 `json:"selling_price"`
	CreatedAt    string  `json:"created_at"`
}

// ExportProducts exports every product in st as an indented JSON document.
// Products are ordered by code so exports of equal stores are identical
// apart from the timestamp.
func ExportProducts(ctx context.Context, st store.ProductStore, opts *ExportOptions) (string, error) {
	if opts == nil {
		opts = &ExportOptions{}
	}

	products, err := st.ListProducts(ctx)
	if err != nil {
		return "", fmt.Errorf("listing products: %w", err)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Code < products[j].Code
	})

	schemaVersion := 0
	if sv, ok := st.(schemaVersioner); ok {
		schemaVersion, err = sv.SchemaVersion(ctx)
		if err != nil {
			return "", err
		}
	}

	doc := Document{
		Export: Envelope{
			Version:       ExportVersion,
			ExportedAt:    time.Now().UTC().Format(timeFormat),
			Source:        "go/" + Version,
			Engine:        opts.Engine,
			SchemaVersion: schemaVersion,
		},
		Products: make([]ProductRecord, 0, len(products)),
	}
	for _, p := range products {
		doc.Products = append(doc.Products, ProductRecord{
			ID:           p.ID,
			ProductCode:  p.Code,
			Link:         p.Link,
			RMBPrice:     p.RMBPrice,
			Weight:       p.Weight,
			SellingPrice: p.SellingPrice,
			CreatedAt:    p.CreatedAt.UTC().Format(timeFormat),
		})
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}
	return string(b), nil
}

// ImportProducts imports an export document into st. Rows with a malformed
// code, or fields a create request would reject, are skipped with a warning.
func ImportProducts(ctx context.Context, st store.ProductStore, jsonStr string, opts *ImportOptions) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	var doc Document
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if doc.Export.Version < 1 || doc.Export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %v", doc.Export.Version)
	}

	result := &ImportResult{}

	if opts.Replace {
		existing, err := st.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing existing products: %w", err)
		}
		for _, p := range existing {
			if err := st.DeleteProduct(ctx, p.Code); err != nil && !errors.Is(err, store.ErrNotFound) {
				return result, fmt.Errorf("deleting %s: %w", p.Code, err)
			}
			result.Deleted++
		}
	}

	now := time.Now().UTC()
	for _, rec := range doc.Products {
		if !codegen.Valid(rec.ProductCode) {
			result.Skipped++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped product %q: malformed product code", rec.ProductCode))
			continue
		}
		fields := catalog.NewProduct{
			Link:         rec.Link,
			RMBPrice:     rec.RMBPrice,
			Weight:       rec.Weight,
			SellingPrice: rec.SellingPrice,
		}
		if err := fields.Validate(); err != nil {
			result.Skipped++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped product %q: %v", rec.ProductCode, err))
			continue
		}

		p := &store.Product{
			ID:           rec.ID,
			Code:         rec.ProductCode,
			Link:         strings.TrimSpace(rec.Link),
			RMBPrice:     rec.RMBPrice,
			Weight:       rec.Weight,
			SellingPrice: rec.SellingPrice,
			CreatedAt:    now,
		}
		if p.ID == "" {
			p.ID = uid.New()
		}
		if rec.CreatedAt != "" {
			t, err := time.Parse(timeFormat, rec.CreatedAt)
			if err != nil {
				t, err = time.Parse(time.RFC3339Nano, rec.CreatedAt)
			}
			if err == nil {
				p.CreatedAt = t.UTC()
			}
		}

		err := st.InsertIfAbsent(ctx, p)
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, store.ErrConflict):
			result.Skipped++
		default:
			result.Skipped++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped product %q: %v", rec.ProductCode, err))
		}
	}

	return result, nil
}
