// Package store provides the persistence layer for products.
package store

import (
	"context"
	"time"
)

// Product is the persisted representation of a product.
type Product struct {
	ID                int64     `db:"id"`
	Name              string    `db:"name"`
	Description       string    `db:"description"`
	StockQuantity     int64     `db:"stock_quantity"`
	LowStockThreshold int64     `db:"low_stock_threshold"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// Save inserts the product when its ID is zero and updates it otherwise.
	// Returns ErrProductNotFound when updating a product that does not exist.
	Save(ctx context.Context, product *Product) (*Product, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64) (*Product, error)

	// ExistsByID reports whether a product with the given ID exists.
	ExistsByID(ctx context.Context, id int64) (bool, error)

	// DeleteByID removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id int64) error

	// FindAll returns all products ordered by ID.
	// Returns an empty slice if no products exist.
	FindAll(ctx context.Context) ([]Product, error)

	// WithinTx runs fn against a store bound to a single unit of work.
	// Products read through that store stay locked until fn returns; an error from fn discards its writes.
	WithinTx(ctx context.Context, fn func(tx ProductStore) error) error
}
