package coupon

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/fault"
)

var (
	// ErrNotFound is returned when a coupon id does not resolve.
	ErrNotFound = fault.New(fault.NotFound, "coupon not found")
	// ErrAlreadyUsed is returned when the coupon was redeemed before, including
	// by a concurrent request that won the race.
	ErrAlreadyUsed = fault.New(fault.CouponAlreadyUsed, "coupon already used")
	// ErrNotOwned is returned when the coupon is assigned to another member.
	ErrNotOwned = fault.New(fault.CouponNotOwned, "coupon belongs to another member")
)

// Coupon is a single-use discount. DiscountRate is a percentage in 0..100.
// OwnerID is empty for coupons not assigned to a member.
type Coupon struct {
	ID           string
	Code         string
	DiscountRate decimal.Decimal
	OwnerID      string
	Used         bool
}

// OwnedBy reports whether memberID may redeem c.
func (c *Coupon) OwnedBy(memberID string) bool {
	return c.OwnerID == "" || c.OwnerID == memberID
}

// Redemption is the token returned by a successful redeem. It carries the rate
// observed at redemption time and the owner before redemption, so Unredeem can
// restore the coupon exactly.
type Redemption struct {
	CouponID        string
	MemberID        string
	DiscountRate    decimal.Decimal
	PreviousOwnerID string
}

// Repository provides coupon lookups. The returned Used flag is a snapshot;
// only Ledger decides redemption.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Coupon, error)
}

// Ledger owns all mutation of the used flag.
type Ledger interface {
	// Redeem atomically flips the coupon from unused to used on behalf of
	// memberID. Of any number of concurrent callers exactly one succeeds; the
	// others get ErrAlreadyUsed. An unassigned coupon becomes owned by memberID.
	Redeem(ctx context.Context, couponID, memberID string) (Redemption, error)
	// Unredeem reverts a redemption made by Redeem.
	Unredeem(ctx context.Context, r Redemption) error
}
