package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/product"
)

// Store bundles the PostgreSQL repositories over one pool.
type Store struct {
	Members  *MemberRepository
	Products *ProductRepository
	Coupons  *CouponRepository
	Orders   *OrderRepository
}

// NewStore returns repositories sharing pool and policy.
func NewStore(pool *pgxpool.Pool, policy RetryPolicy) *Store {
	return &Store{
		Members:  NewMemberRepository(pool),
		Products: NewProductRepository(pool, policy),
		Coupons:  NewCouponRepository(pool, policy),
		Orders:   NewOrderRepository(pool),
	}
}

func (s *Store) UpsertMember(ctx context.Context, m member.Member) error {
	return s.Members.Upsert(ctx, m)
}

func (s *Store) UpsertProduct(ctx context.Context, p product.Product) error {
	return s.Products.Upsert(ctx, p)
}

func (s *Store) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	return s.Coupons.Upsert(ctx, c)
}
