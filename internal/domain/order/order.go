package order

import (
	"context"
	"time"

	"github.com/xenking/stockorder/internal/domain/fault"
)

var (
	// ErrNotFound is returned when an order id does not resolve.
	ErrNotFound = fault.New(fault.NotFound, "order not found")
	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = fault.New(fault.RuleViolation, "quantity must be greater than 0")
	// ErrMissingID is returned when the member or product id is empty.
	ErrMissingID = fault.New(fault.RuleViolation, "member id and product id are required")
)

// Status is an order's lifecycle state. Only creation is modelled.
type Status string

const StatusCreated Status = "CREATED"

// Order is the immutable record of one successful order creation. Amounts are
// in the smallest currency unit; TotalPrice includes DeliveryFee.
type Order struct {
	ID          string
	MemberID    string
	ProductID   string
	Quantity    int64
	Subtotal    int64
	Discount    int64
	DeliveryFee int64
	TotalPrice  int64
	Status      Status
	// CouponID is empty when no coupon was redeemed.
	CouponID  string
	CreatedAt time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Save stores a new order. It assigns ID and CreatedAt when they are unset.
	Save(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}
