// Package inventory defines the stock reservation contract. Implementations
// must make the check-and-decrement for one product a single indivisible step
// and must not serialize reservations of different products against each other.
package inventory

import (
	"context"

	"github.com/xenking/stockorder/internal/domain/fault"
)

var (
	// ErrInsufficientStock is returned when a reservation asks for more units
	// than the product has left.
	ErrInsufficientStock = fault.New(fault.InsufficientStock, "insufficient stock")
	// ErrInvalidQuantity is returned for a non-positive reservation quantity.
	ErrInvalidQuantity = fault.New(fault.RuleViolation, "quantity must be greater than 0")
)

// Reservation is a committed stock decrement that can be undone with Release
// until the surrounding order commits.
type Reservation struct {
	ID        string
	ProductID string
	Quantity  int64
}

// Store owns all mutation of product stock.
type Store interface {
	// Reserve decrements the product's stock by quantity if enough is left,
	// otherwise it returns ErrInsufficientStock and changes nothing.
	Reserve(ctx context.Context, productID string, quantity int64) (Reservation, error)
	// Release restores the quantity taken by r. Each reservation must be
	// released at most once.
	Release(ctx context.Context, r Reservation) error
}
