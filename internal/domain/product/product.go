package product

import (
	"context"

	"github.com/xenking/stockorder/internal/domain/fault"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = fault.New(fault.NotFound, "product not found")

// Product represents a limited-stock catalog item. UnitPrice is in the smallest
// currency unit.
type Product struct {
	ID        string
	Name      string
	UnitPrice int64
	Stock     int64
}

// Repository defines read operations for the product catalog. Stock returned
// here is a snapshot; mutations go through inventory.Store only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
