package social

import (
	"context"

	"github.com/desertthunder/soundshare/internal/metrics"
	"github.com/desertthunder/soundshare/internal/shared"
)

// step is one idempotent write of a graph mutation.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// execute runs steps strictly in order and stops at the first failure.
func (s *Service) execute(ctx context.Context, op string, steps ...step) error {
	completed := make([]string, 0, len(steps))

	for _, st := range steps {
		if err := st.run(ctx); err != nil {
			outcome := metrics.WriteFailed
			if len(completed) > 0 {
				outcome = metrics.WritePartial
				s.logger.Warn("graph write interrupted", "op", op, "completed", completed, "failed", st.name, "err", err)
			}
			s.metrics.RecordGraphWrite(op, outcome)
			return &shared.GraphWriteError{Operation: op, Step: st.name, Completed: completed, Err: err}
		}
		completed = append(completed, st.name)
	}

	s.metrics.RecordGraphWrite(op, metrics.WriteComplete)
	return nil
}

func (s *Service) skip(op, reason string, kv ...any) {
	s.metrics.RecordGraphWrite(op, metrics.WriteSkipped)
	s.logger.Info("skipped "+op, append([]any{"reason", reason}, kv...)...)
}
