package member

import (
	"context"

	"github.com/xenking/stockorder/internal/domain/fault"
)

// ErrNotFound is returned when a requested member does not exist.
var ErrNotFound = fault.New(fault.NotFound, "member not found")

// Grade is a member's pricing tier.
type Grade string

const (
	GradeNormal Grade = "NORMAL"
	GradeVIP    Grade = "VIP"
)

// Valid reports whether g is a known grade.
func (g Grade) Valid() bool {
	switch g {
	case GradeNormal, GradeVIP:
		return true
	default:
		return false
	}
}

// Member is a customer who places orders.
type Member struct {
	ID    string
	Name  string
	Grade Grade
}

// Repository provides member lookups.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Member, error)
}
