package memory

import (
	"context"
	"sync"

	"github.com/xenking/stockorder/internal/domain/member"
)

var _ member.Repository = (*Members)(nil)

// Members is a read-mostly member directory.
type Members struct {
	mu   sync.RWMutex
	byID map[string]member.Member
}

func NewMembers() *Members {
	return &Members{byID: make(map[string]member.Member)}
}

func (m *Members) Put(v member.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[v.ID] = v
}

func (m *Members) GetByID(_ context.Context, id string) (*member.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, member.ErrNotFound
	}
	return &v, nil
}
