// Package detach runs best-effort side effects that must not hold up or
// fail the request that started them.
package detach

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FailureRecorder is notified when a task returns an error or panics.
type FailureRecorder interface {
	DetachedTaskFailed(task string)
}

type Supervisor struct {
	group    errgroup.Group
	timeout  time.Duration
	recorder FailureRecorder
}

// New returns a Supervisor running at most limit tasks at once. Each task
// gets its own timeout, detached from the caller's cancellation.
func New(limit int, timeout time.Duration, recorder FailureRecorder) *Supervisor {
	s := &Supervisor{timeout: timeout, recorder: recorder}
	if limit > 0 {
		s.group.SetLimit(limit)
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Second
	}
	return s
}

// Go starts fn in the background and returns immediately. It reports false
// when the supervisor is saturated and the task was dropped.
func (s *Supervisor) Go(ctx context.Context, task string, fn func(ctx context.Context) error) bool {
	base := context.WithoutCancel(ctx)

	started := s.group.TryGo(func() error {
		ctx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()

		if err := s.run(ctx, fn); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("task", task).Msg("detached task failed")
			if s.recorder != nil {
				s.recorder.DetachedTaskFailed(task)
			}
		}
		return nil
	})

	if !started {
		zerolog.Ctx(ctx).Debug().Str("task", task).Msg("detached task skipped, supervisor saturated")
	}
	return started
}

func (s *Supervisor) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has finished.
func (s *Supervisor) Wait() {
	_ = s.group.Wait()
}
