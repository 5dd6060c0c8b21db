package memory

import (
	"context"
	"sync"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/pkg/keylock"
)

var (
	_ coupon.Repository = (*Coupons)(nil)
	_ coupon.Ledger     = (*Coupons)(nil)
)

// Coupons holds coupons and owns the used flag. As with Products, a record is
// touched only under its key lock.
type Coupons struct {
	locks *keylock.Locker

	mu   sync.RWMutex
	byID map[string]*coupon.Coupon
}

func NewCoupons(locks *keylock.Locker) *Coupons {
	return &Coupons{
		locks: locks,
		byID:  make(map[string]*coupon.Coupon),
	}
}

// Put adds or replaces a coupon.
func (c *Coupons) Put(ctx context.Context, v coupon.Coupon) error {
	unlock, err := lock(ctx, c.locks, v.ID)
	if err != nil {
		return err
	}
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[v.ID] = &v
	return nil
}

func (c *Coupons) get(id string) (*coupon.Coupon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byID[id]
	return v, ok
}

func (c *Coupons) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	unlock, err := lock(ctx, c.locks, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, ok := c.get(id)
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (c *Coupons) Redeem(ctx context.Context, couponID, memberID string) (coupon.Redemption, error) {
	unlock, err := lock(ctx, c.locks, couponID)
	if err != nil {
		return coupon.Redemption{}, err
	}
	defer unlock()

	rec, ok := c.get(couponID)
	switch {
	case !ok:
		return coupon.Redemption{}, coupon.ErrNotFound
	case rec.Used:
		return coupon.Redemption{}, coupon.ErrAlreadyUsed
	case !rec.OwnedBy(memberID):
		return coupon.Redemption{}, coupon.ErrNotOwned
	}

	r := coupon.Redemption{
		CouponID:        couponID,
		MemberID:        memberID,
		DiscountRate:    rec.DiscountRate,
		PreviousOwnerID: rec.OwnerID,
	}
	rec.Used = true
	rec.OwnerID = memberID
	return r, nil
}

func (c *Coupons) Unredeem(ctx context.Context, r coupon.Redemption) error {
	unlock, err := lockForUndo(ctx, c.locks, r.CouponID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, ok := c.get(r.CouponID)
	if !ok {
		return coupon.ErrNotFound
	}
	if !rec.Used || rec.OwnerID != r.MemberID {
		// Not redeemed by this token; nothing to revert.
		return nil
	}
	rec.Used = false
	rec.OwnerID = r.PreviousOwnerID
	return nil
}
