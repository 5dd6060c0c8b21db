// Package saga records compensating actions for a multi-step operation and
// runs them in reverse order when the operation does not commit.
package saga

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CompensateFunc undoes one completed step.
type CompensateFunc func(ctx context.Context) error

type step struct {
	name string
	undo CompensateFunc
}

// Saga is a stack of compensations. It is not safe for concurrent use; one
// Saga belongs to one request.
type Saga struct {
	steps     []step
	committed bool
}

// New returns an empty Saga.
func New() *Saga {
	return &Saga{}
}

// Add registers the compensation for a step that has just succeeded.
func (s *Saga) Add(name string, undo CompensateFunc) {
	s.steps = append(s.steps, step{name: name, undo: undo})
}

// Commit marks the saga as successful. Later calls to Compensate are no-ops.
func (s *Saga) Commit() {
	s.committed = true
}

// Compensate runs every registered compensation in reverse order, once.
//
// Compensations run on a context detached from ctx's cancellation, so an
// abandoned request still undoes its effects. All compensations are attempted
// even if some fail; their errors are joined.
func (s *Saga) Compensate(ctx context.Context) error {
	if s.committed {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx)

	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if err := st.undo(ctx); err != nil {
			lg.Error("Compensation failed", zap.String("step", st.name), zap.Error(err))
			errs = append(errs, errors.Wrapf(err, "compensate %s", st.name))
			continue
		}
		lg.Debug("Compensated", zap.String("step", st.name))
	}
	s.steps = nil
	return multierr.Combine(errs...)
}
