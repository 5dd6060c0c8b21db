package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockorder/internal/domain/inventory"
	"github.com/xenking/stockorder/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, unit_price, stock FROM products WHERE id = $1`

	lockProductStockSQL = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1`

	incrementStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, unit_price, stock) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price, stock = EXCLUDED.stock`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ inventory.Store    = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and inventory.Store backed
// by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
	tx   txRunner
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool, policy RetryPolicy) *ProductRepository {
	return &ProductRepository{pool: pool, tx: newTxRunner(pool, policy)}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Reserve locks the product row, checks the remaining stock and decrements it
// in one transaction.
func (r *ProductRepository) Reserve(ctx context.Context, productID string, quantity int64) (inventory.Reservation, error) {
	if quantity <= 0 {
		return inventory.Reservation{}, inventory.ErrInvalidQuantity
	}

	err := r.tx.inTx(ctx, "reserve stock", func(tx pgx.Tx) error {
		var stock int64
		if err := tx.QueryRow(ctx, lockProductStockSQL, productID).Scan(&stock); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return product.ErrNotFound
			}
			return errors.Wrap(err, "lock product")
		}
		if stock < quantity {
			return inventory.ErrInsufficientStock
		}
		if _, err := tx.Exec(ctx, decrementStockSQL, productID, quantity); err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		return nil
	})
	if err != nil {
		return inventory.Reservation{}, err
	}

	return inventory.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
	}, nil
}

// Release adds the reserved quantity back.
func (r *ProductRepository) Release(ctx context.Context, res inventory.Reservation) error {
	return r.tx.undoTx(ctx, "release stock", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, incrementStockSQL, res.ProductID, res.Quantity)
		if err != nil {
			return errors.Wrap(err, "increment stock")
		}
		if tag.RowsAffected() == 0 {
			return product.ErrNotFound
		}
		return nil
	})
}

// Upsert inserts or replaces a product, including its stock.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.UnitPrice, p.Stock); err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock)
	return p, err
}
