package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockorder/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, member_id, product_id, quantity, subtotal, discount,
			delivery_fee, total_price, status, coupon_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`

	getOrderByIDSQL = `SELECT id, member_id, product_id, quantity, subtotal, discount,
			delivery_fee, total_price, status, coupon_id, created_at
		FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Save inserts a new order, assigning its id and creation time when unset.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.MemberID, o.ProductID, o.Quantity, o.Subtotal, o.Discount,
		o.DeliveryFee, o.TotalPrice, string(o.Status), o.CouponID, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		couponID *string
	)
	err := row.Scan(
		&o.ID, &o.MemberID, &o.ProductID, &o.Quantity, &o.Subtotal, &o.Discount,
		&o.DeliveryFee, &o.TotalPrice, &o.Status, &couponID, &o.CreatedAt,
	)
	o.CouponID = deref(couponID)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}
