package store

import (
	"context"
	"sync"

	"github.com/ltcatalog/ltcatalog/internal/codegen"
)

// MemoryStore is a process-local ProductStore. The write lock held across
// the membership check and the insert makes InsertIfAbsent atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*Product),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.products[code]
	return exists, nil
}

func (s *MemoryStore) Codes(ctx context.Context) (codegen.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make(codegen.Set, len(s.products))
	for code := range s.products {
		codes.Add(code)
	}
	return codes, nil
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.Code]; exists {
		return ErrConflict
	}
	productCopy := *p
	s.products[p.Code] = &productCopy
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, code string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[code]
	if !exists {
		return nil, nil
	}
	productCopy := *p
	return &productCopy, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	products := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, *p)
	}
	s.mu.RUnlock()

	sortNewestFirst(products)
	return products, nil
}

func (s *MemoryStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return filterProducts(all, query), nil
}

func (s *MemoryStore) DeleteProduct(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[code]; !exists {
		return ErrNotFound
	}
	delete(s.products, code)
	return nil
}

var _ ProductStore = (*MemoryStore)(nil)
