package live

import (
	"bufio"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// droppedConn accepts the first write and fails every later one.
type droppedConn struct {
	mu     sync.Mutex
	writes int
}

func (d *droppedConn) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	if d.writes > 1 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestStream_IdleDisconnectReleasedAtKeepAlive(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	h := NewHandler(hub, 20*time.Millisecond)

	sub := hub.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.stream(bufio.NewWriter(&droppedConn{}), sub)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept a dead subscriber past the keep-alive")
	}
	assert.Zero(t, hub.Count())
	_, ok := <-sub.C
	require.False(t, ok)
}
