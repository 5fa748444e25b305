package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
)

// sheetHeader is the first row of the products sheet.
var sheetHeader = []any{"Product Code", "Link", "RMB Price", "Weight (kg)", "Selling Price (BDT)", "Created At", "ID"}

// SheetAPI is the row-level view of a spreadsheet tab the store needs.
// Row indexes are zero-based and exclude the header row.
type SheetAPI interface {
	Rows(ctx context.Context) ([][]any, error)
	AppendRow(ctx context.Context, row []any) error
	DeleteRow(ctx context.Context, index int) error
}

// SheetsStore keeps one spreadsheet row per product.
//
// Sheets has no uniqueness constraint. InsertIfAbsent re-reads the codes and
// appends under a process-local mutex, so it only guards against writers in
// the same process. Run a single writer when using this engine.
type SheetsStore struct {
	mu    sync.Mutex
	sheet SheetAPI
}

// NewSheetsStore connects to the spreadsheet and makes sure the products tab
// exists with its header row.
func NewSheetsStore(ctx context.Context, cfg *config.SheetsConfig) (*SheetsStore, error) {
	if cfg == nil || cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets spreadsheet id is required")
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	title := cfg.SheetTitle
	if title == "" {
		title = "Products"
	}
	tab := &googleSheet{svc: svc, spreadsheetID: cfg.SpreadsheetID, title: title}
	if err := tab.ensure(ctx); err != nil {
		return nil, err
	}
	return NewSheetsStoreWithAPI(tab), nil
}

// NewSheetsStoreWithAPI builds a store around an existing sheet view.
func NewSheetsStoreWithAPI(sheet SheetAPI) *SheetsStore {
	return &SheetsStore{sheet: sheet}
}

func (s *SheetsStore) Ping(ctx context.Context) error {
	_, err := s.sheet.Rows(ctx)
	return err
}

func (s *SheetsStore) Close() error {
	return nil
}

func (s *SheetsStore) CodeExists(ctx context.Context, code string) (bool, error) {
	_, idx, err := s.find(ctx, code)
	if err != nil {
		return false, err
	}
	return idx >= 0, nil
}

func (s *SheetsStore) Codes(ctx context.Context) (codegen.Set, error) {
	rows, err := s.sheet.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	codes := codegen.NewSet()
	for _, row := range rows {
		if code := cell(row, 0); code != "" {
			codes.Add(code)
		}
	}
	return codes, nil
}

func (s *SheetsStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.CodeExists(ctx, p.Code)
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}

	row := []any{
		p.Code,
		p.Link,
		p.RMBPrice,
		p.Weight,
		p.SellingPrice,
		formatTime(p.CreatedAt),
		p.ID,
	}
	if err := s.sheet.AppendRow(ctx, row); err != nil {
		return fmt.Errorf("appending product row: %w", err)
	}
	return nil
}

func (s *SheetsStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	p, _, err := s.find(ctx, code)
	return p, err
}

func (s *SheetsStore) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.sheet.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		if cell(row, 0) == "" {
			continue
		}
		products = append(products, *rowToProduct(row))
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *SheetsStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return filterProducts(all, query), nil
}

func (s *SheetsStore) DeleteProduct(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, err := s.find(ctx, code)
	if err != nil {
		return err
	}
	if idx < 0 {
		return ErrNotFound
	}
	if err := s.sheet.DeleteRow(ctx, idx); err != nil {
		return fmt.Errorf("deleting product row: %w", err)
	}
	return nil
}

// find returns the product and its row index, or nil, -1.
func (s *SheetsStore) find(ctx context.Context, code string) (*Product, int, error) {
	rows, err := s.sheet.Rows(ctx)
	if err != nil {
		return nil, -1, fmt.Errorf("reading sheet: %w", err)
	}
	for i, row := range rows {
		if cell(row, 0) == code {
			return rowToProduct(row), i, nil
		}
	}
	return nil, -1, nil
}

func rowToProduct(row []any) *Product {
	return &Product{
		Code:         cell(row, 0),
		Link:         cell(row, 1),
		RMBPrice:     cellFloat(row, 2),
		Weight:       cellFloat(row, 3),
		SellingPrice: cellFloat(row, 4),
		CreatedAt:    parseTime(cell(row, 5)),
		ID:           cell(row, 6),
	}
}

func cell(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func cellFloat(row []any, i int) float64 {
	f, _ := strconv.ParseFloat(cell(row, i), 64)
	return f
}

// googleSheet implements SheetAPI on one tab of a Google spreadsheet.
type googleSheet struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string
	sheetID       int64
}

// ensure looks up the tab, creating it with a header row when missing.
func (g *googleSheet) ensure(ctx context.Context) error {
	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("loading spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == g.title {
			g.sheetID = sh.Properties.SheetId
			return nil
		}
	}

	resp, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: g.title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("adding sheet %q: %w", g.title, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
		g.sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	_, err = g.svc.Spreadsheets.Values.Update(g.spreadsheetID, g.title+"!A1:G1", &sheets.ValueRange{
		Values: [][]any{sheetHeader},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing sheet header: %w", err)
	}
	return nil
}

func (g *googleSheet) Rows(ctx context.Context) ([][]any, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.title+"!A2:G").
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleSheet) AppendRow(ctx context.Context, row []any) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, g.title+"!A:G", &sheets.ValueRange{
		Values: [][]any{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (g *googleSheet) DeleteRow(ctx context.Context, index int) error {
	// +1 skips the header row.
	start := int64(index + 1)
	_, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         g.sheetID,
					Dimension:       "ROWS",
					StartIndex:      start,
					EndIndex:        start + 1,
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}).Context(ctx).Do()
	return err
}

var _ ProductStore = (*SheetsStore)(nil)
