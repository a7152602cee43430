package browser_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/platform/browser"
)

type fakeSession struct {
	connected atomic.Bool
	closed    atomic.Bool
}

func (f *fakeSession) NewContext(...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSession) IsConnected() bool { return f.connected.Load() }

type fakeLauncher struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error

	// when set, Launch signals started and blocks until gate closes
	started chan struct{}
	gate    chan struct{}
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, func() error, error) {
	if l.gate != nil {
		l.started <- struct{}{}
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, nil, l.err
	}
	s := &fakeSession{}
	s.connected.Store(true)
	l.sessions = append(l.sessions, s)
	return s, func() error { s.closed.Store(true); return nil }, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func TestAcquire_LaunchesLazilyAndReuses(t *testing.T) {
	l := &fakeLauncher{}
	m := browser.NewManager(l, 0)
	assert.Equal(t, 0, l.count())

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s1)

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s2)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, l.count())
}

func TestAcquire_RelaunchesDisconnectedSession(t *testing.T) {
	l := &fakeLauncher{}
	m := browser.NewManager(l, 0)

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s1)
	s1.(*fakeSession).connected.Store(false)

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s2)

	assert.NotSame(t, s1, s2)
	assert.True(t, s1.(*fakeSession).closed.Load())
	assert.True(t, s2.IsConnected())
}

func TestDiscard_ForcesFreshLaunch(t *testing.T) {
	l := &fakeLauncher{}
	m := browser.NewManager(l, 0)

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Discard(s1)
	m.Release(s1)

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s2)

	assert.NotSame(t, s1, s2)
	assert.Equal(t, 2, l.count())

	// discarding a stale handle must not kill the replacement
	m.Discard(s1)
	open, _, _ := m.Status()
	assert.True(t, open)
}

func TestAcquire_LaunchFailureIsSessionUnavailable(t *testing.T) {
	l := &fakeLauncher{err: errors.New("no chromium")}
	m := browser.NewManager(l, 0)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrSessionUnavailable)
}

func TestCloseIdle_KeepsBorrowedSession(t *testing.T) {
	l := &fakeLauncher{}
	m := browser.NewManager(l, 0)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.CloseIdle()
	assert.False(t, s.(*fakeSession).closed.Load())

	m.Release(s)
	m.CloseIdle()
	assert.True(t, s.(*fakeSession).closed.Load())
}

func TestRelease_IdleTimerClosesSession(t *testing.T) {
	l := &fakeLauncher{}
	m := browser.NewManager(l, 20*time.Millisecond)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s)

	assert.Eventually(t, func() bool { return s.(*fakeSession).closed.Load() }, time.Second, 5*time.Millisecond)
}

func TestAcquire_SlowLaunchDoesNotBlockOthers(t *testing.T) {
	l := &fakeLauncher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := browser.NewManager(l, 0)

	type result struct {
		s   browser.Session
		err error
	}
	first := make(chan result, 1)
	go func() {
		s, err := m.Acquire(context.Background())
		first <- result{s, err}
	}()
	<-l.started

	begin := time.Now()
	open, borrowed, launches := m.Status()
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.False(t, open)
	assert.Zero(t, borrowed)
	assert.Zero(t, launches)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	second := make(chan result, 1)
	go func() {
		s, err := m.Acquire(context.Background())
		second <- result{s, err}
	}()

	close(l.gate)
	r1, r2 := <-first, <-second
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Same(t, r1.s, r2.s)
	assert.Equal(t, 1, l.count())

	_, borrowed, launches = m.Status()
	assert.Equal(t, 2, borrowed)
	assert.Equal(t, 1, launches)
	m.Release(r1.s)
	m.Release(r2.s)
}

func TestAcquire_WaitersShareLaunchFailure(t *testing.T) {
	l := &fakeLauncher{err: errors.New("no chromium"), started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := browser.NewManager(l, 0)

	errs := make(chan error, 2)
	go func() {
		_, err := m.Acquire(context.Background())
		errs <- err
	}()
	<-l.started
	go func() {
		_, err := m.Acquire(context.Background())
		errs <- err
	}()
	// let the second caller start waiting before the launch fails
	time.Sleep(20 * time.Millisecond)
	close(l.gate)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errs, browser.ErrSessionUnavailable)
	}
}

func TestClose_RejectsFurtherAcquire(t *testing.T) {
	m := browser.NewManager(&fakeLauncher{}, 0)
	m.Close()
	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, browser.ErrSessionUnavailable)
}
