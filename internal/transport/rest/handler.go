// Package rest provides HTTP handlers for inventory operations.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	inverrors "github.com/stocktrack/inventory/internal/errors"
	"github.com/stocktrack/inventory/internal/service"
	"github.com/stocktrack/inventory/pkg/web"
)

const stockAmountParam = "stockAmount"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service  service.InventoryService
	validate *validator.Validate
	logger   *slog.Logger
	pinger   Pinger
}

// NewHandler creates a new Handler. A nil pinger makes the service always ready.
func NewHandler(service service.InventoryService, pinger Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
		pinger:   pinger,
	}
}

// RegisterRoutes registers the HTTP routes for the inventory service.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/product", func(r chi.Router) {
		r.Get("/", h.ListAll)
		r.Post("/", h.Create)
		r.Get("/low-stocks", h.FindLowStock)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/purchase", h.PurchaseStock)
			r.Post("/sell", h.SellStock)
		})
	})

	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.ReadinessCheck)
}

// ListAll returns every product.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	mLogger.DebugContext(r.Context(), "Received request to list all products")
	list, err := h.service.ListAll(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var createDto service.ProductCreateDto
	if !h.decodeAndValidate(w, r, mLogger, &createDto) {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to create product", "product", createDto)

	created, err := h.service.Create(r.Context(), createDto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, created)
}

// FindByID retrieves a product by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// Update applies a partial update to a product.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var updateDto service.ProductUpdateDto
	if !h.decodeAndValidate(w, r, mLogger, &updateDto) {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to update product", "ID", id)

	updated, err := h.service.Update(r.Context(), id, updateDto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// Delete removes a product by its ID.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to delete product", "ID", id)
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// PurchaseStock adds the stockAmount query parameter to the product's stock.
func (h *Handler) PurchaseStock(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, "purchase", h.service.PurchaseStock)
}

// SellStock removes the stockAmount query parameter from the product's stock.
func (h *Handler) SellStock(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, "sell", h.service.SellStock)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request, operation string,
	fn func(ctx context.Context, id int64, amount int64) (*service.ProductDto, error)) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	amount, ok := web.ParseQueryInt64(w, r, mLogger, stockAmountParam)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received stock request", "operation", operation, "ID", id, "amount", amount)

	updated, err := fn(r.Context(), id, amount)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Stock updated successfully", "operation", operation, "ID", id, "NewStock", updated.StockQuantity)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// FindLowStock lists products whose stock is below their threshold.
func (h *Handler) FindLowStock(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	list, err := h.service.FindLowStock(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved low-stock products", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// HealthCheck is a simple liveness endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadinessCheck reports 503 while the database is unreachable.
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			mLogger := h.loggerWithReqID(r)
			mLogger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			web.RespondError(w, mLogger, http.StatusServiceUnavailable, "Not ready: "+err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		mLogger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		mLogger.WarnContext(r.Context(), "Validation errors occurred", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, web.ValidationMessage(err))
		return false
	}
	return true
}

// respondServiceError maps domain errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error) {
	switch {
	case errors.Is(err, inverrors.ErrProductNotFound):
		mLogger.WarnContext(r.Context(), "Product not found", "error", err)
		web.RespondError(w, mLogger, http.StatusNotFound, err.Error())
	case errors.Is(err, inverrors.ErrInvalidArgument), errors.Is(err, inverrors.ErrInsufficientStock):
		mLogger.WarnContext(r.Context(), "Request rejected", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
	default:
		mLogger.ErrorContext(r.Context(), "Unexpected error", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Something went wrong: %v", err))
	}
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
