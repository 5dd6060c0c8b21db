// Package pricing computes order totals from unit price, quantity, member grade
// and an optional coupon rate.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/fault"
	"github.com/xenking/stockorder/internal/domain/member"
)

var (
	// ErrBelowMinimum is returned when the subtotal is under the minimum order amount.
	ErrBelowMinimum = fault.New(fault.RuleViolation, "below minimum order amount")
	// ErrAmountOverflow is returned when unit price times quantity does not fit in int64.
	ErrAmountOverflow = fault.New(fault.RuleViolation, "order amount out of range")
	// ErrInvalidRate is returned for a discount rate outside 0..100.
	ErrInvalidRate = fault.New(fault.RuleViolation, "discount rate out of range")
)

var hundred = decimal.NewFromInt(100)

// Policy holds the pricing thresholds. The zero value charges no fee and
// grants no discount; use Default for the standard rules.
type Policy struct {
	MinOrderAmount        int64
	FreeDeliveryThreshold int64
	DeliveryFee           int64
	VIPDiscountPercent    decimal.Decimal
}

// Default returns the standard policy: minimum 5000, free delivery from 30000,
// otherwise a 3000 fee, and 10% off for VIP members.
func Default() Policy {
	return Policy{
		MinOrderAmount:        5000,
		FreeDeliveryThreshold: 30000,
		DeliveryFee:           3000,
		VIPDiscountPercent:    decimal.NewFromInt(10),
	}
}

// Input is the data a quote is computed from. CouponRate is nil when no coupon
// applies.
type Input struct {
	UnitPrice  int64
	Quantity   int64
	Grade      member.Grade
	CouponRate *decimal.Decimal
}

// Quote is the priced breakdown of a single order.
type Quote struct {
	Subtotal           int64
	GradeDiscounted    int64
	DiscountedSubtotal int64
	// Discount is Subtotal minus DiscountedSubtotal.
	Discount    int64
	DeliveryFee int64
	Total       int64
}

// Quote prices in. The grade discount is applied first and the coupon rate
// compounds on the result; each step is floored to a whole unit. The delivery
// fee is decided on the final discounted subtotal.
func (p Policy) Quote(in Input) (Quote, error) {
	if in.UnitPrice < 0 || in.Quantity < 0 {
		return Quote{}, ErrAmountOverflow
	}
	if in.Quantity != 0 && in.UnitPrice > math.MaxInt64/in.Quantity {
		return Quote{}, ErrAmountOverflow
	}

	subtotal := in.UnitPrice * in.Quantity
	if subtotal < p.MinOrderAmount {
		return Quote{}, ErrBelowMinimum
	}

	amount := subtotal
	if in.Grade == member.GradeVIP {
		d, err := applyPercent(amount, p.VIPDiscountPercent)
		if err != nil {
			return Quote{}, err
		}
		amount = d
	}
	graded := amount

	if in.CouponRate != nil {
		d, err := applyPercent(amount, *in.CouponRate)
		if err != nil {
			return Quote{}, err
		}
		amount = d
	}

	var fee int64
	if amount < p.FreeDeliveryThreshold {
		fee = p.DeliveryFee
	}

	return Quote{
		Subtotal:           subtotal,
		GradeDiscounted:    graded,
		DiscountedSubtotal: amount,
		Discount:           subtotal - amount,
		DeliveryFee:        fee,
		Total:              amount + fee,
	}, nil
}

// applyPercent returns floor(amount * (100 - pct) / 100).
func applyPercent(amount int64, pct decimal.Decimal) (int64, error) {
	if !ValidRate(pct) {
		return 0, ErrInvalidRate
	}
	keep := hundred.Sub(pct)
	return decimal.NewFromInt(amount).Mul(keep).Div(hundred).Floor().IntPart(), nil
}

// ValidRate reports whether pct is a percentage in 0..100.
func ValidRate(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}
