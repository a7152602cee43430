package detached_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/utils/detached"
)

func TestRun_RecoversPanic(t *testing.T) {
	r := detached.New("test", 0)
	err := r.Run("boom", func(context.Context) error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRun_AppliesTimeout(t *testing.T) {
	r := detached.New("test", 10*time.Millisecond)
	err := r.Run("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGo_SwallowsErrorsAndWaits(t *testing.T) {
	r := detached.New("test", 0)
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		r.Go("task", func(context.Context) error {
			ran.Add(1)
			return errors.New("ignored")
		})
	}
	r.Go("panics", func(context.Context) error { panic("ignored") })
	r.Wait()
	assert.Equal(t, int32(3), ran.Load())
}
