package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string

	// QueueBackend selects the enrichment job queue: memory or redis (asynq).
	QueueBackend     string
	QueueConcurrency int
	JobTimeout       time.Duration
	// LiveBackend selects how update events reach SSE subscribers: memory or redis.
	LiveBackend  string
	SSEKeepAlive time.Duration

	SelectorsFile string

	// Browser session
	ChromiumPath       string
	LaunchTimeout      time.Duration
	BrowserIdleTimeout time.Duration

	// Price source
	PriceBaseURL         string
	PriceProductLine     string
	PriceMaxRetries      int
	PriceRetryBackoff    time.Duration
	NavigationTimeout    time.Duration
	SelectorTimeout      time.Duration
	PriceFallbackEnabled bool

	// Image sources
	WikiBaseURL      string
	CardDBBaseURL    string
	ImageTargetWidth int
	HTTPTimeout      time.Duration

	// Outbound requests per second per source, <=0 disables limiting
	ScrapeRPS float64
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		QueueBackend:     strings.ToLower(getenv("QUEUE_BACKEND", BackendMemory)),
		QueueConcurrency: getenvInt("QUEUE_CONCURRENCY", 2),
		JobTimeout:       getenvDuration("JOB_TIMEOUT", 3*time.Minute),
		LiveBackend:      strings.ToLower(getenv("LIVE_BACKEND", BackendMemory)),
		SSEKeepAlive:     getenvDuration("SSE_KEEPALIVE", 280*time.Second),

		SelectorsFile: os.Getenv("SELECTORS_FILE"),

		ChromiumPath:       os.Getenv("CHROMIUM_PATH"),
		LaunchTimeout:      getenvDuration("BROWSER_LAUNCH_TIMEOUT", 45*time.Second),
		BrowserIdleTimeout: getenvDuration("BROWSER_IDLE_TIMEOUT", 60*time.Second),

		PriceBaseURL:         getenv("PRICE_BASE_URL", "https://www.tcgplayer.com"),
		PriceProductLine:     getenv("PRICE_PRODUCT_LINE", "yugioh"),
		PriceMaxRetries:      getenvInt("PRICE_MAX_RETRIES", 2),
		PriceRetryBackoff:    getenvDuration("PRICE_RETRY_BACKOFF", 2*time.Second),
		NavigationTimeout:    getenvDuration("NAVIGATION_TIMEOUT", 15*time.Second),
		SelectorTimeout:      getenvDuration("SELECTOR_TIMEOUT", 12*time.Second),
		PriceFallbackEnabled: getenvBool("PRICE_FALLBACK_ENABLED", true),

		WikiBaseURL:      getenv("WIKI_BASE_URL", "https://yugipedia.com"),
		CardDBBaseURL:    getenv("CARDDB_BASE_URL", "https://db.ygoprodeck.com"),
		ImageTargetWidth: getenvInt("IMAGE_TARGET_WIDTH", 300),
		HTTPTimeout:      getenvDuration("HTTP_TIMEOUT", 10*time.Second),

		ScrapeRPS: getenvFloat("SCRAPE_RPS", 1),
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	for name, v := range map[string]string{"QUEUE_BACKEND": c.QueueBackend, "LIVE_BACKEND": c.LiveBackend} {
		if v != BackendMemory && v != BackendRedis {
			return fmt.Errorf("%s must be %q or %q, got %q", name, BackendMemory, BackendRedis, v)
		}
	}
	if c.NeedsRedis() && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when a redis backend is selected")
	}
	if c.QueueConcurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be at least 1")
	}
	if c.PriceMaxRetries < 0 {
		return fmt.Errorf("PRICE_MAX_RETRIES must not be negative")
	}
	return nil
}

// NeedsRedis reports whether any configured backend talks to redis.
func (c Config) NeedsRedis() bool {
	return c.QueueBackend == BackendRedis || c.LiveBackend == BackendRedis
}
