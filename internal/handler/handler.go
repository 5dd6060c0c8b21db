// Package handler exposes the order core over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/stockorder/internal/domain/order"
	"github.com/xenking/stockorder/internal/domain/product"
	"github.com/xenking/stockorder/internal/idempotency"
)

// OrderService is the part of order.Service the handler needs.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Handler serves the order API.
type Handler struct {
	orders   OrderService
	products product.Repository
	idem     idempotency.Store
}

// NewHandler constructs a Handler. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHandler(
	orders OrderService,
	products product.Repository,
	idem idempotency.Store,
) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		idem:     idem,
	}
}

// Routes returns the API router, to be mounted under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrder)
	r.Get("/products/{id}", h.GetProduct)
	return r
}
