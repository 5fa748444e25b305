package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore implements ProductStore on a networked PostgreSQL database.
// The UNIQUE constraint on product_code is the uniqueness guard.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database described by cfg and creates
// the products table if needed.
func NewPostgresStore(ctx context.Context, cfg *config.PostgresConfig) (*PostgresStore, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initDB(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing postgres database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initDB(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id            TEXT PRIMARY KEY,
			product_code  VARCHAR(50) UNIQUE NOT NULL,
			link          TEXT NOT NULL,
			rmb_price     DOUBLE PRECISION NOT NULL,
			weight        DOUBLE PRECISION NOT NULL,
			selling_price DOUBLE PRECISION NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating products table: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at)`)
	if err != nil {
		return fmt.Errorf("creating products index: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CodeExists reports whether a product with the given code exists.
func (s *PostgresStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE product_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking product code %q: %w", code, err)
	}
	return exists, nil
}

// Codes returns all product codes in use.
func (s *PostgresStore) Codes(ctx context.Context) (codegen.Set, error) {
	rows, err := s.pool.Query(ctx, `SELECT product_code FROM products`)
	if err != nil {
		return nil, fmt.Errorf("listing product codes: %w", err)
	}
	defer rows.Close()

	codes := codegen.NewSet()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning product code: %w", err)
		}
		codes.Add(code)
	}
	return codes, rows.Err()
}

// InsertIfAbsent inserts p, returning ErrConflict on a unique violation.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, product_code, link, rmb_price, weight, selling_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Code, p.Link, p.RMBPrice, p.Weight, p.SellingPrice, p.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName != "products_pkey" {
			return ErrConflict
		}
		return fmt.Errorf("inserting product %q: %w", p.Code, err)
	}
	return nil
}

const postgresSelect = `SELECT id, product_code, link, rmb_price, weight, selling_price, created_at FROM products`

// GetProduct returns the product with the given code, or nil, nil.
func (s *PostgresStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, postgresSelect+` WHERE product_code = $1`, code).
		Scan(&p.ID, &p.Code, &p.Link, &p.RMBPrice, &p.Weight, &p.SellingPrice, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", code, err)
	}
	return &p, nil
}

// ListProducts returns all products, newest first.
func (s *PostgresStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.query(ctx, postgresSelect+` ORDER BY created_at DESC, product_code ASC`)
}

// SearchProducts returns products whose code or link contains query.
func (s *PostgresStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	pattern := "%" + escapeLike(query) + "%"
	return s.query(ctx,
		postgresSelect+` WHERE product_code ILIKE $1 OR link ILIKE $1
		 ORDER BY created_at DESC, product_code ASC`,
		pattern,
	)
}

// DeleteProduct removes the product with the given code.
func (s *PostgresStore) DeleteProduct(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE product_code = $1`, code)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Link, &p.RMBPrice, &p.Weight, &p.SellingPrice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

var _ ProductStore = (*PostgresStore)(nil)
