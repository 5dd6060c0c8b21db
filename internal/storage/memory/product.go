package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/xenking/stockorder/internal/domain/inventory"
	"github.com/xenking/stockorder/internal/domain/product"
	"github.com/xenking/stockorder/pkg/keylock"
)

var (
	_ product.Repository = (*Products)(nil)
	_ inventory.Store    = (*Products)(nil)
)

// Products holds the catalog and owns stock mutation.
//
// mu guards the map itself. A product record is read and written only while
// holding that product's key lock.
type Products struct {
	locks *keylock.Locker

	mu   sync.RWMutex
	byID map[string]*product.Product
}

func NewProducts(locks *keylock.Locker) *Products {
	return &Products{
		locks: locks,
		byID:  make(map[string]*product.Product),
	}
}

// Put adds or replaces a product, including its stock.
func (p *Products) Put(ctx context.Context, v product.Product) error {
	unlock, err := lock(ctx, p.locks, v.ID)
	if err != nil {
		return err
	}
	defer unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[v.ID] = &v
	return nil
}

func (p *Products) get(id string) (*product.Product, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.byID[id]
	return v, ok
}

// GetByID returns a snapshot of the product taken under its lock.
func (p *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	unlock, err := lock(ctx, p.locks, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, ok := p.get(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (p *Products) Reserve(ctx context.Context, productID string, quantity int64) (inventory.Reservation, error) {
	if quantity <= 0 {
		return inventory.Reservation{}, inventory.ErrInvalidQuantity
	}

	unlock, err := lock(ctx, p.locks, productID)
	if err != nil {
		return inventory.Reservation{}, err
	}
	defer unlock()

	rec, ok := p.get(productID)
	if !ok {
		return inventory.Reservation{}, product.ErrNotFound
	}
	if rec.Stock < quantity {
		return inventory.Reservation{}, inventory.ErrInsufficientStock
	}
	rec.Stock -= quantity

	return inventory.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
	}, nil
}

func (p *Products) Release(ctx context.Context, r inventory.Reservation) error {
	unlock, err := lockForUndo(ctx, p.locks, r.ProductID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, ok := p.get(r.ProductID)
	if !ok {
		return product.ErrNotFound
	}
	rec.Stock += r.Quantity
	return nil
}
