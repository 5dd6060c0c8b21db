// Package memory is an in-process backend for the order core. Stock and coupon
// mutations are serialized per product and per coupon with keylock, so
// unrelated entities never wait on each other.
package memory

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/fault"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/product"
	"github.com/xenking/stockorder/pkg/keylock"
)

// Store bundles the in-memory repositories.
type Store struct {
	Members  *Members
	Products *Products
	Coupons  *Coupons
	Orders   *Orders
}

// New returns an empty Store. lockWait bounds how long a reservation or
// redemption waits for its entity before failing with fault.ErrContention.
func New(lockWait time.Duration) *Store {
	return &Store{
		Members:  NewMembers(),
		Products: NewProducts(keylock.New(lockWait)),
		Coupons:  NewCoupons(keylock.New(lockWait)),
		Orders:   NewOrders(),
	}
}

// UpsertMember stores m, replacing any member with the same id.
func (s *Store) UpsertMember(_ context.Context, m member.Member) error {
	s.Members.Put(m)
	return nil
}

// UpsertProduct stores p, replacing any product with the same id.
func (s *Store) UpsertProduct(ctx context.Context, p product.Product) error {
	return s.Products.Put(ctx, p)
}

// UpsertCoupon stores c, replacing any coupon with the same id.
func (s *Store) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	return s.Coupons.Put(ctx, c)
}

// lock maps keylock failures onto the fault taxonomy.
func lock(ctx context.Context, l *keylock.Locker, key string) (func(), error) {
	unlock, err := l.Lock(ctx, key)
	switch {
	case err == nil:
		return unlock, nil
	case errors.Is(err, keylock.ErrTimeout):
		return nil, fault.Wrap(fault.Contention, fault.ErrContention, "lock "+key)
	default:
		return nil, err
	}
}

// lockForUndo waits for key without the store's wait limit. Compensations
// must not fail on contention, or a reservation or redemption would leak.
func lockForUndo(ctx context.Context, l *keylock.Locker, key string) (func(), error) {
	return l.LockUnbounded(ctx, key)
}
