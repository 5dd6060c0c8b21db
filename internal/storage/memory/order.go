package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/stockorder/internal/domain/order"
)

var _ order.Repository = (*Orders)(nil)

// Orders is an append-only order log.
type Orders struct {
	mu   sync.RWMutex
	byID map[string]order.Order
	now  func() time.Time
}

func NewOrders() *Orders {
	return &Orders{
		byID: make(map[string]order.Order),
		now:  time.Now,
	}
}

func (s *Orders) Save(_ context.Context, o *order.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; ok {
		return errors.Errorf("order %q already exists", o.ID)
	}
	s.byID[o.ID] = *o
	return nil
}

func (s *Orders) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

// Len returns the number of stored orders.
func (s *Orders) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
