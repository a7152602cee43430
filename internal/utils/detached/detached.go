package detached

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cardmarket/internal/logger"
)

// Runner executes work that must outlive the request that started it. Errors
// and panics stay inside the task and are only logged.
type Runner struct {
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// New returns a runner whose tasks get a fresh context bounded by timeout
// (no bound when timeout <= 0).
func New(name string, timeout time.Duration) *Runner {
	return &Runner{log: logger.New(name), timeout: timeout}
}

// Go starts fn in the background.
func (r *Runner) Go(task string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Run(task, fn); err != nil {
			r.log.Warn().Str("task", task).Str("error", err.Error()).Msg("detached task failed")
		}
	}()
}

// Run executes fn synchronously with the same boundary Go uses and returns its
// error, converting a panic into one.
func (r *Runner) Run(task string, fn func(ctx context.Context) error) (err error) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", task, p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every task started with Go has returned.
func (r *Runner) Wait() { r.wg.Wait() }
