package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	inverrors "github.com/stocktrack/inventory/internal/errors"
)

// InMemoryStore implements ProductStore using an in-memory map.
// Writers and transactions are serialized; readers only wait for a commit in progress.
type InMemoryStore struct {
	writeMu  sync.Mutex
	mu       sync.RWMutex
	products map[int64]Product
	lastID   int64
	inTx     bool
}

// NewInMemoryStore creates a new empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		products: make(map[int64]Product),
	}
}

// Save inserts the product with the next ID when its ID is zero and replaces it otherwise.
func (s *InMemoryStore) Save(_ context.Context, product *Product) (*Product, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := *product
	if p.ID == 0 {
		s.lastID++
		p.ID = s.lastID
		p.CreatedAt = now
	} else {
		existing, ok := s.products[p.ID]
		if !ok {
			return nil, inverrors.ErrProductNotFound
		}
		p.CreatedAt = existing.CreatedAt
	}
	p.UpdatedAt = now
	s.products[p.ID] = p

	return &p, nil
}

// FindByID retrieves a product by its ID.
func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, inverrors.ErrProductNotFound
	}
	return &p, nil
}

// ExistsByID reports whether a product with the given ID exists.
func (s *InMemoryStore) ExistsByID(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.products[id]
	return ok, nil
}

// DeleteByID removes a product by its ID.
func (s *InMemoryStore) DeleteByID(_ context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return inverrors.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

// FindAll retrieves all products ordered by ID.
func (s *InMemoryStore) FindAll(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.products))
	list := make([]Product, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.products[id])
	}
	return list, nil
}

// WithinTx runs fn against a private copy of the products and publishes the copy when fn succeeds.
// IDs handed out inside a failed transaction are not reused.
func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(tx ProductStore) error) error {
	if s.inTx {
		return fn(s)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	tx := &InMemoryStore{
		products: maps.Clone(s.products),
		lastID:   s.lastID,
		inTx:     true,
	}
	s.mu.RUnlock()

	err := fn(tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = tx.lastID
	if err != nil {
		return err
	}
	s.products = tx.products
	return nil
}
