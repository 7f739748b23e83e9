package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	inverrors "github.com/stocktrack/inventory/internal/errors"
)

const pgCheckViolation = "23514"

// checkViolationMessages maps schema constraints to client-facing messages.
var checkViolationMessages = map[string]string{
	"products_stock_quantity_non_negative":      "stock quantity must not be negative",
	"products_low_stock_threshold_non_negative": "low stock threshold must not be negative",
}

const productColumns = "id, name, description, stock_quantity, low_stock_threshold, created_at, updated_at"

const (
	insertProductSQL = `INSERT INTO products (name, description, stock_quantity, low_stock_threshold)
VALUES ($1, $2, $3, $4)
RETURNING ` + productColumns

	updateProductSQL = `UPDATE products
SET name = $2, description = $3, stock_quantity = $4, low_stock_threshold = $5, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

	findProductSQL      = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	existsProductSQL    = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
	deleteProductSQL    = `DELETE FROM products WHERE id = $1`
	findAllProductsSQL  = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	lockForUpdateSuffix = ` FOR UPDATE`
)

// dbtx is the subset of pgx shared by the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore implements ProductStore using PostgreSQL as the data store.
type PgStore struct {
	pool *pgxpool.Pool
	db   dbtx
	// inTx is set on stores handed to WithinTx callbacks; their reads lock rows.
	inTx bool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{
		pool: dbp,
		db:   dbp,
	}
}

// Save inserts or updates a product.
func (p *PgStore) Save(ctx context.Context, product *Product) (*Product, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if product.ID == 0 {
		rows, err = p.db.Query(ctx, insertProductSQL,
			product.Name, product.Description, product.StockQuantity, product.LowStockThreshold)
	} else {
		rows, err = p.db.Query(ctx, updateProductSQL,
			product.ID, product.Name, product.Description, product.StockQuantity, product.LowStockThreshold)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save product: %w", err)
	}
	saved, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inverrors.ErrProductNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return nil, fmt.Errorf("%w: %s", inverrors.ErrInvalidArgument, checkViolationMessage(pgErr.ConstraintName))
		}
		return nil, fmt.Errorf("failed to save product: %w", err)
	}
	return saved, nil
}

func checkViolationMessage(constraint string) string {
	if msg, ok := checkViolationMessages[constraint]; ok {
		return msg
	}
	return "product violates a data constraint"
}

// FindByID retrieves a product by its unique identifier.
// Inside WithinTx the row is locked until the transaction ends.
func (p *PgStore) FindByID(ctx context.Context, id int64) (*Product, error) {
	query := findProductSQL
	if p.inTx {
		query += lockForUpdateSuffix
	}
	rows, err := p.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	product, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inverrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// ExistsByID reports whether a product with the given ID exists.
func (p *PgStore) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, existsProductSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", err)
	}
	return exists, nil
}

// DeleteByID removes a product by its unique identifier.
func (p *PgStore) DeleteByID(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete product by ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inverrors.ErrProductNotFound
	}
	return nil
}

// FindAll retrieves all products ordered by ID.
func (p *PgStore) FindAll(ctx context.Context) ([]Product, error) {
	rows, err := p.db.Query(ctx, findAllProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[Product])
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	return products, nil
}

// WithinTx runs fn inside a database transaction. Nested calls reuse the outer transaction.
func (p *PgStore) WithinTx(ctx context.Context, fn func(tx ProductStore) error) error {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(&PgStore{db: tx, inTx: true})
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
