// Package service provides the implementation of inventory business logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	inverrors "github.com/stocktrack/inventory/internal/errors"
	"github.com/stocktrack/inventory/internal/store"
	"github.com/stocktrack/inventory/pkg/messaging"
	"github.com/stocktrack/inventory/pkg/messaging/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

const meterName = "inventory-service"

// InventoryService defines the methods for managing products and their stock.
type InventoryService interface {
	// ListAll returns all products in store order.
	ListAll(ctx context.Context) ([]ProductDto, error)

	// Create adds a new product.
	// Returns ErrInvalidArgument if the stock quantity or threshold is negative.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64) (*ProductDto, error)

	// Update merges the patch into an existing product.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(ctx context.Context, id int64, patch ProductUpdateDto) (*ProductDto, error)

	// Delete removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Delete(ctx context.Context, id int64) error

	// PurchaseStock adds amount units to the product's stock.
	PurchaseStock(ctx context.Context, id int64, amount int64) (*ProductDto, error)

	// SellStock removes amount units from the product's stock.
	// Returns ErrInsufficientStock if the product holds fewer than amount units.
	SellStock(ctx context.Context, id int64, amount int64) (*ProductDto, error)

	// FindLowStock returns the products whose stock is below their threshold.
	FindLowStock(ctx context.Context) ([]ProductDto, error)
}

// Service implements InventoryService.
type Service struct {
	store     store.ProductStore
	publisher messaging.Publisher

	purchasedCounter metric.Int64Counter
	soldCounter      metric.Int64Counter
	alertsCounter    metric.Int64Counter
}

// NewService creates a new instance of InventoryService.
func NewService(productStore store.ProductStore, publisher messaging.Publisher) *Service {
	meter := otel.Meter(meterName)
	return &Service{
		store:            productStore,
		publisher:        publisher,
		purchasedCounter: mustCounter(meter, "inventory_stock_purchased_units", "Total number of purchased stock units"),
		soldCounter:      mustCounter(meter, "inventory_stock_sold_units", "Total number of sold stock units"),
		alertsCounter:    mustCounter(meter, "inventory_low_stock_alerts", "Total number of emitted low-stock alerts"),
	}
}

func mustCounter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		panic(fmt.Sprintf("failed to create %s counter: %v", name, err))
	}
	return counter
}

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	StockQuantity     int64  `json:"stockQuantity"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
}

// ProductCreateDto represents the data transfer object for creating a new product.
type ProductCreateDto struct {
	Name              string `json:"name"              validate:"max=255"`
	Description       string `json:"description"`
	StockQuantity     int64  `json:"stockQuantity"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
}

// ProductUpdateDto is a partial update. Nil fields are left unchanged.
type ProductUpdateDto struct {
	Name              *string `json:"name"              validate:"omitnil,max=255"`
	Description       *string `json:"description"`
	StockQuantity     *int64  `json:"stockQuantity"`
	LowStockThreshold *int64  `json:"lowStockThreshold"`
}

func (s *Service) ListAll(ctx context.Context) ([]ProductDto, error) {
	products, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return toDtos(products, nil), nil
}

func (s *Service) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	if product.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock quantity must not be negative", inverrors.ErrInvalidArgument)
	}
	if product.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: low stock threshold must not be negative", inverrors.ErrInvalidArgument)
	}
	created, err := s.store.Save(ctx, &store.Product{
		Name:              product.Name,
		Description:       product.Description,
		StockQuantity:     product.StockQuantity,
		LowStockThreshold: product.LowStockThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.alertIfLow(ctx, created)
	return toDto(created), nil
}

func (s *Service) FindByID(ctx context.Context, id int64) (*ProductDto, error) {
	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	return toDto(product), nil
}

// Update replaces name and description when present. Stock quantity and threshold are
// replaced only when present, different from the stored value and positive.
func (s *Service) Update(ctx context.Context, id int64, patch ProductUpdateDto) (*ProductDto, error) {
	var updated *store.Product
	err := s.store.WithinTx(ctx, func(tx store.ProductStore) error {
		product, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			product.Name = *patch.Name
		}
		if patch.Description != nil {
			product.Description = *patch.Description
		}
		if v := patch.LowStockThreshold; v != nil && *v != product.LowStockThreshold && *v > 0 {
			product.LowStockThreshold = *v
		}
		if v := patch.StockQuantity; v != nil && *v != product.StockQuantity && *v > 0 {
			product.StockQuantity = *v
		}
		updated, err = tx.Save(ctx, product)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update product with ID %d: %w", id, err)
	}
	s.alertIfLow(ctx, updated)
	return toDto(updated), nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	exists, err := s.store.ExistsByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check product with ID %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("failed to delete product with ID %d: %w", id, inverrors.ErrProductNotFound)
	}
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product with ID %d: %w", id, err)
	}
	return nil
}

func (s *Service) PurchaseStock(ctx context.Context, id int64, amount int64) (*ProductDto, error) {
	updated, err := s.adjustStock(ctx, id, func(product *store.Product) error {
		if amount < 0 {
			return fmt.Errorf("%w: purchase amount must not be negative", inverrors.ErrInvalidArgument)
		}
		if amount > math.MaxInt64-product.StockQuantity {
			return fmt.Errorf("%w: purchase amount %d exceeds maximum stock quantity", inverrors.ErrInvalidArgument, amount)
		}
		product.StockQuantity += amount
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purchase stock for product with ID %d: %w", id, err)
	}
	s.purchasedCounter.Add(ctx, amount)
	s.alertIfLow(ctx, updated)
	return toDto(updated), nil
}

func (s *Service) SellStock(ctx context.Context, id int64, amount int64) (*ProductDto, error) {
	updated, err := s.adjustStock(ctx, id, func(product *store.Product) error {
		if amount < 0 {
			return fmt.Errorf("%w: sell amount must not be negative", inverrors.ErrInvalidArgument)
		}
		if amount > product.StockQuantity {
			return fmt.Errorf("%w: requested %d, available %d", inverrors.ErrInsufficientStock, amount, product.StockQuantity)
		}
		product.StockQuantity -= amount
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sell stock for product with ID %d: %w", id, err)
	}
	s.soldCounter.Add(ctx, amount)
	s.alertIfLow(ctx, updated)
	return toDto(updated), nil
}

// adjustStock loads the product under lock, applies fn and saves the result.
// Nothing is written when fn fails.
func (s *Service) adjustStock(ctx context.Context, id int64, fn func(product *store.Product) error) (*store.Product, error) {
	var updated *store.Product
	err := s.store.WithinTx(ctx, func(tx store.ProductStore) error {
		product, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(product); err != nil {
			return err
		}
		updated, err = tx.Save(ctx, product)
		return err
	})
	return updated, err
}

func (s *Service) FindLowStock(ctx context.Context) ([]ProductDto, error) {
	products, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return toDtos(products, isLowStock), nil
}

func isLowStock(product *store.Product) bool {
	return product.StockQuantity < product.LowStockThreshold
}

// alertIfLow publishes a LowStockAlertEvent for a low-stock product.
// Publish failures are logged and never fail the caller.
func (s *Service) alertIfLow(ctx context.Context, product *store.Product) {
	if !isLowStock(product) {
		return
	}
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.LowStockAlertEvent{
		Carrier:           carrier,
		ProductID:         product.ID,
		Name:              product.Name,
		StockQuantity:     product.StockQuantity,
		LowStockThreshold: product.LowStockThreshold,
		DetectedAt:        time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish LowStockAlertEvent", "product_id", product.ID, "error", err)
		return
	}
	s.alertsCounter.Add(ctx, 1)
}

func toDtos(products []store.Product, keep func(*store.Product) bool) []ProductDto {
	dtos := make([]ProductDto, 0, len(products))
	for i := range products {
		if keep != nil && !keep(&products[i]) {
			continue
		}
		dtos = append(dtos, *toDto(&products[i]))
	}
	return dtos
}

func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:                product.ID,
		Name:              product.Name,
		Description:       product.Description,
		StockQuantity:     product.StockQuantity,
		LowStockThreshold: product.LowStockThreshold,
	}
}
