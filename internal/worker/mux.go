package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"cardmarket/internal/logger"
)

type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

// NewMux returns a mux whose handlers are wrapped with panic recovery and timing.
func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.recoverer)
	return m
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

func (m *Mux) recoverer(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) (err error) {
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				m.log.LogErrorf("task %s panicked: %v", task.Type(), p)
				err = fmt.Errorf("task %s panicked: %v: %w", task.Type(), p, asynq.SkipRetry)
			}
			m.log.LogDebugf("task %s finished in %v", task.Type(), time.Since(start))
		}()
		return next.ProcessTask(ctx, task)
	})
}
