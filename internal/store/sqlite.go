package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ltcatalog/ltcatalog/internal/codegen"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore implements ProductStore on an embedded SQLite database. The
// UNIQUE constraint on product_code is the uniqueness guard.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at dsn and
// initializes the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	// PRAGMAs are per connection and SQLite has a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// SchemaVersion returns the newest applied schema version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// initDB applies PRAGMAs and creates the products table. Idempotent.
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS products (
			id            TEXT PRIMARY KEY,
			product_code  TEXT UNIQUE NOT NULL,
			link          TEXT NOT NULL,
			rmb_price     REAL NOT NULL,
			weight        REAL NOT NULL,
			selling_price REAL NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CodeExists reports whether a product with the given code exists.
func (s *SQLiteStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM products WHERE product_code = ?`, code,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking product code %q: %w", code, err)
	}
	return true, nil
}

// Codes returns all product codes in use.
func (s *SQLiteStore) Codes(ctx context.Context) (codegen.Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_code FROM products`)
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

// InsertIfAbsent inserts p, returning ErrConflict on a duplicate code.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, product_code, link, rmb_price, weight, selling_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Code,
		p.Link,
		p.RMBPrice,
		p.Weight,
		p.SellingPrice,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: products.product_code") {
			return ErrConflict
		}
		return fmt.Errorf("inserting product %q: %w", p.Code, err)
	}
	return nil
}

const sqliteSelect = `SELECT id, product_code, link, rmb_price, weight, selling_price, created_at FROM products`

// GetProduct returns the product with the given code, or nil, nil.
func (s *SQLiteStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE product_code = ?`, code)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", code, err)
	}
	return p, nil
}

// ListProducts returns all products, newest first.
func (s *SQLiteStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.query(ctx, sqliteSelect+` ORDER BY created_at DESC, product_code ASC`)
}

// SearchProducts returns products whose code or link contains query.
// SQLite LIKE is case-insensitive for ASCII.
func (s *SQLiteStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	pattern := "%" + escapeLike(query) + "%"
	return s.query(ctx,
		sqliteSelect+` WHERE product_code LIKE ? ESCAPE '\' OR link LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, product_code ASC`,
		pattern, pattern,
	)
}

// DeleteProduct removes the product with the given code.
func (s *SQLiteStore) DeleteProduct(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE product_code = ?`, code)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", code, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (*Product, error) {
	var p Product
	var createdAt string
	if err := sc.Scan(&p.ID, &p.Code, &p.Link, &p.RMBPrice, &p.Weight, &p.SellingPrice, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ ProductStore = (*SQLiteStore)(nil)
