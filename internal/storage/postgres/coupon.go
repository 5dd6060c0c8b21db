package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/coupon"
)

const (
	getCouponByIDSQL = `SELECT id, code, discount_rate, member_id, used FROM coupons WHERE id = $1`

	lockCouponSQL = `SELECT discount_rate, member_id, used FROM coupons WHERE id = $1 FOR UPDATE`

	redeemCouponSQL = `UPDATE coupons SET used = TRUE, used_at = now(), member_id = $2 WHERE id = $1`

	unredeemCouponSQL = `UPDATE coupons SET used = FALSE, used_at = NULL, member_id = NULLIF($2, '') WHERE id = $1`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_rate, member_id, used) VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, discount_rate = EXCLUDED.discount_rate,
			member_id = EXCLUDED.member_id, used = EXCLUDED.used`

	insertCouponSQL = `INSERT INTO coupons (id, code, discount_rate, member_id) VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (code) DO NOTHING`

	existingCodesSQL = `SELECT code FROM coupons WHERE code = ANY($1)`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Ledger     = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.Ledger backed by
// PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
	tx   txRunner
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool, policy RetryPolicy) *CouponRepository {
	return &CouponRepository{pool: pool, tx: newTxRunner(pool, policy)}
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get coupon %q", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get coupon %q", id)
	}
	return &c, nil
}

// Redeem locks the coupon row and flips its used flag. Concurrent redeemers
// queue on the row lock and observe the flag set by the winner.
func (r *CouponRepository) Redeem(ctx context.Context, couponID, memberID string) (coupon.Redemption, error) {
	var red coupon.Redemption
	err := r.tx.inTx(ctx, "redeem coupon", func(tx pgx.Tx) error {
		var (
			rate  decimal.Decimal
			owner *string
			used  bool
		)
		if err := tx.QueryRow(ctx, lockCouponSQL, couponID).Scan(&rate, &owner, &used); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrNotFound
			}
			return errors.Wrap(err, "lock coupon")
		}

		c := coupon.Coupon{ID: couponID, DiscountRate: rate, OwnerID: deref(owner), Used: used}
		if c.Used {
			return coupon.ErrAlreadyUsed
		}
		if !c.OwnedBy(memberID) {
			return coupon.ErrNotOwned
		}
		if _, err := tx.Exec(ctx, redeemCouponSQL, couponID, memberID); err != nil {
			return errors.Wrap(err, "mark coupon used")
		}

		red = coupon.Redemption{
			CouponID:        couponID,
			MemberID:        memberID,
			DiscountRate:    rate,
			PreviousOwnerID: c.OwnerID,
		}
		return nil
	})
	if err != nil {
		return coupon.Redemption{}, err
	}
	return red, nil
}

// Unredeem restores the coupon to its state before red. It does nothing if the
// coupon is no longer held by red's member.
func (r *CouponRepository) Unredeem(ctx context.Context, red coupon.Redemption) error {
	return r.tx.undoTx(ctx, "unredeem coupon", func(tx pgx.Tx) error {
		var (
			rate  decimal.Decimal
			owner *string
			used  bool
		)
		if err := tx.QueryRow(ctx, lockCouponSQL, red.CouponID).Scan(&rate, &owner, &used); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrNotFound
			}
			return errors.Wrap(err, "lock coupon")
		}
		if !used || deref(owner) != red.MemberID {
			return nil
		}
		if _, err := tx.Exec(ctx, unredeemCouponSQL, red.CouponID, red.PreviousOwnerID); err != nil {
			return errors.Wrap(err, "mark coupon unused")
		}
		return nil
	})
}

// Upsert inserts or replaces a coupon.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, c.ID, c.Code, c.DiscountRate, c.OwnerID, c.Used); err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.ID)
	}
	return nil
}

// InsertBatch inserts coupons in one round trip, skipping codes that already
// exist. It returns the number of rows inserted.
func (r *CouponRepository) InsertBatch(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(insertCouponSQL, c.ID, c.Code, c.DiscountRate, c.OwnerID)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, c := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert coupon %q", c.Code)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ExistingCodes returns the subset of codes already stored.
func (r *CouponRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, existingCodesSQL, codes)
	if err != nil {
		return nil, errors.Wrap(err, "query existing codes")
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "collect existing codes")
	}

	out := make(map[string]struct{}, len(found))
	for _, code := range found {
		out[code] = struct{}{}
	}
	return out, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c     coupon.Coupon
		owner *string
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountRate, &owner, &c.Used)
	c.OwnerID = deref(owner)
	return c, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
