package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"cardmarket/internal/logger"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Info reports a component's state without affecting overall health.
type Info func() map[string]any

// HealthHandler handles health check requests
type HealthHandler struct {
	log       *logger.Logger
	startTime time.Time
	isReady   atomic.Bool
	checks    map[string]Check
	info      map[string]Info
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		log:       logger.New("HealthCheck"),
		startTime: time.Now(),
		checks:    make(map[string]Check),
		info:      make(map[string]Info),
	}
}

// AddCheck registers a dependency that must be healthy. Call before serving.
func (h *HealthHandler) AddCheck(name string, c Check) *HealthHandler {
	h.checks[name] = c
	return h
}

// AddInfo registers an informational component.
func (h *HealthHandler) AddInfo(name string, i Info) *HealthHandler {
	h.info[name] = i
	return h
}

// SetReady marks the application as ready to receive traffic
func (h *HealthHandler) SetReady() {
	h.isReady.Store(true)
	h.log.LogSuccessf("Application marked as ready for traffic after %v", time.Since(h.startTime))
}

// ComponentStatus holds the status of a dependent component
type ComponentStatus struct {
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type OverallHealth struct {
	OverallStatus string                     `json:"overall_status"`
	Timestamp     string                     `json:"timestamp"`
	Ready         bool                       `json:"ready"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Components    map[string]ComponentStatus `json:"components"`
}

// HandleHealth runs every check concurrently and reports 200 only when the
// process is ready and all checks pass.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 8*time.Second)
	defer cancel()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		allOk = true
	)
	statuses := make(map[string]ComponentStatus, len(h.checks)+len(h.info))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			started := time.Now()
			st := ComponentStatus{Status: "ok"}
			if err := check(ctx); err != nil {
				st = ComponentStatus{Status: "error", Error: err.Error()}
				h.log.LogErrorf("Health check failed for %s after %v: %v", name, time.Since(started), err)
			}
			mu.Lock()
			defer mu.Unlock()
			if st.Status != "ok" {
				allOk = false
			}
			statuses[name] = st
		}(name, h.checks[name])
	}
	wg.Wait()

	for name, info := range h.info {
		statuses[name] = ComponentStatus{Status: "info", Details: info()}
	}

	ready := h.isReady.Load()
	response := OverallHealth{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Ready:         ready,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Components:    statuses,
	}

	switch {
	case allOk && ready:
		response.OverallStatus = "ok"
		return c.Status(http.StatusOK).JSON(response)
	case !ready:
		response.OverallStatus = "starting"
		return c.Status(http.StatusServiceUnavailable).JSON(response)
	default:
		response.OverallStatus = "error"
		h.log.LogWarnf("Health check failed. Statuses: %+v", statuses)
		return c.Status(http.StatusServiceUnavailable).JSON(response)
	}
}

func HealthLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Rate limit exceeded"})
		},
	})
}
