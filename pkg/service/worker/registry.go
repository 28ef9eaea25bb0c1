package worker

import (
	"context"
	"sync"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Registry tracks background validation tasks by turn so a shutting-down
// server can drain them instead of abandoning in-flight audit writes.
// After Close, submitted tasks run synchronously on the caller's
// goroutine; shutdown must not leave untracked work behind.
type Registry struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	active map[model.TurnID]struct{}
	closed bool
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		active: make(map[model.TurnID]struct{}),
	}
}

// Submit runs the task in a tracked goroutine. The task receives a
// context detached from the caller's deadline but carrying its logger.
// Submitting a turn ID that is already active is rejected.
func (r *Registry) Submit(ctx context.Context, turnID model.TurnID, task func(ctx context.Context) error) error {
	bgCtx := logging.With(context.Background(), logging.From(ctx))

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.run(bgCtx, turnID, task)
	}
	if _, ok := r.active[turnID]; ok {
		r.mu.Unlock()
		return goerr.New("task already active for turn", goerr.V("turnID", turnID))
	}
	r.active[turnID] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.active, turnID)
			r.mu.Unlock()
			r.wg.Done()
		}()

		if err := r.run(bgCtx, turnID, task); err != nil {
			logging.From(bgCtx).Error("background task failed",
				"turnID", turnID,
				"error", goerr.Unwrap(err),
			)
		}
	}()

	return nil
}

// ActiveCount returns the number of running tasks
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Drain stops accepting new background work and waits for active tasks
// to finish or the context to expire, whichever comes first.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	remaining := len(r.active)
	r.mu.Unlock()

	if remaining > 0 {
		logging.From(ctx).Info("draining background tasks", "active", remaining)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "drain deadline exceeded",
			goerr.V("remaining", r.ActiveCount()))
	}
}

// run executes one task with panic recovery
func (r *Registry) run(ctx context.Context, turnID model.TurnID, task func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = goerr.New("panic in background task",
				goerr.V("turnID", turnID),
				goerr.V("panic", rec))
		}
	}()

	return task(ctx)
}
