package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"cardmarket/internal/logger"
)

// ErrSessionUnavailable is returned when no browser can be launched at all.
var ErrSessionUnavailable = errors.New("browser session unavailable")

// Session is the slice of a playwright browser the scrapers use.
type Session interface {
	NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error)
	IsConnected() bool
}

// Launcher starts a browser process. The returned closer tears it down.
type Launcher interface {
	Launch(ctx context.Context) (Session, func() error, error)
}

// Manager hands out one shared browser session, relaunching it after a crash
// and closing it once nobody has borrowed it for IdleTimeout.
type Manager struct {
	log         *logger.Logger
	launcher    Launcher
	idleTimeout time.Duration

	mu        sync.Mutex
	current   Session
	closeFn   func() error
	borrowed  int
	idleTimer *time.Timer
	launches  int
	launching *launch
	closed    bool
}

// launch is an in-flight Launch call. done closes once err is set.
type launch struct {
	done chan struct{}
	err  error
}

func NewManager(launcher Launcher, idleTimeout time.Duration) *Manager {
	return &Manager{log: logger.New("BrowserManager"), launcher: launcher, idleTimeout: idleTimeout}
}

// Acquire returns a connected session, launching one if needed. Only one launch
// runs at a time; other callers wait for it or for their own ctx. Every
// successful Acquire must be paired with Release.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrSessionUnavailable
		}
		if m.idleTimer != nil {
			m.idleTimer.Stop()
			m.idleTimer = nil
		}
		if m.current != nil && !m.current.IsConnected() {
			m.log.LogWarn("browser session disconnected, relaunching")
			m.closeLocked()
		}
		if m.current != nil {
			m.borrowed++
			s := m.current
			m.mu.Unlock()
			return s, nil
		}

		if l := m.launching; l != nil {
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-l.done:
			}
			// a launch that failed on its caller's deadline says nothing about ours
			if l.err != nil && !errors.Is(l.err, context.Canceled) && !errors.Is(l.err, context.DeadlineExceeded) {
				return nil, l.err
			}
			continue
		}

		l := &launch{done: make(chan struct{})}
		m.launching = l
		m.mu.Unlock()

		return m.runLaunch(ctx, l)
	}
}

func (m *Manager) runLaunch(ctx context.Context, l *launch) (Session, error) {
	sess, closeFn, err := m.launcher.Launch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(l.done)
	m.launching = nil

	if err != nil {
		m.log.LogError("browser launch failed", err)
		if !errors.Is(err, ErrSessionUnavailable) {
			err = errors.Join(ErrSessionUnavailable, err)
		}
		l.err = err
		return nil, err
	}
	if m.closed {
		if closeFn != nil {
			_ = closeFn()
		}
		l.err = ErrSessionUnavailable
		return nil, l.err
	}
	m.current, m.closeFn = sess, closeFn
	m.launches++
	m.borrowed++
	m.log.LogInfof("browser session launched (launch #%d)", m.launches)
	return sess, nil
}

// Release returns a borrowed session.
func (m *Manager) Release(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.borrowed > 0 {
		m.borrowed--
	}
	if m.borrowed == 0 && m.current != nil && m.idleTimeout > 0 {
		if m.idleTimer != nil {
			m.idleTimer.Stop()
		}
		m.idleTimer = time.AfterFunc(m.idleTimeout, m.CloseIdle)
	}
}

// Discard marks s as broken. The next Acquire launches a fresh session. Discarding
// a session that was already replaced is a no-op.
func (m *Manager) Discard(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || m.current != s {
		return
	}
	m.log.LogWarn("discarding failed browser session")
	m.closeLocked()
}

// CloseIdle closes the session if nothing currently borrows it.
func (m *Manager) CloseIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.borrowed > 0 || m.current == nil {
		return
	}
	m.log.LogDebug("closing idle browser session")
	m.closeLocked()
}

// Close shuts the session down regardless of borrowers. A launch still in
// flight is closed as soon as it finishes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	m.closeLocked()
}

// Status describes the session for health reporting. It never waits on a launch.
func (m *Manager) Status() (open bool, borrowed int, launches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil, m.borrowed, m.launches
}

func (m *Manager) closeLocked() {
	if m.closeFn != nil {
		if err := m.closeFn(); err != nil {
			m.log.LogDebugf("browser close: %v", err)
		}
	}
	m.current, m.closeFn = nil, nil
}
