package price

import (
	"context"
	"errors"
	"strings"
	"time"

	"cardmarket/internal/logger"
	"cardmarket/internal/platform/browser"
)

// Result is a lookup outcome. Price is nil when no source had one; CardName is
// always the name the caller asked for, never the search variant that matched.
type Result struct {
	CardName string   `json:"cardName"`
	Price    *float64 `json:"price"`
}

// Source is one pricing backend. Lookup returns (nil, nil) when the source
// answered but had no price for term.
type Source interface {
	Name() string
	Lookup(ctx context.Context, term string) (*float64, error)
}

// Cache is satisfied by the redis platform service.
type Cache interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttlSeconds int) error
}

type Options struct {
	// MaxRetries is how many times a transient failure is retried for the same term.
	MaxRetries int
	Backoff    time.Duration
}

const cacheTTLSeconds = 900

type Service struct {
	log     *logger.Logger
	sources []Source
	opts    Options
	cache   Cache
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewService tries sources in order; the first is the primary pricing site.
func NewService(sources []Source, opts Options) *Service {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Service{
		log:     logger.New("PriceService"),
		sources: sources,
		opts:    opts,
		sleep:   sleepCtx,
	}
}

func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// WithSleep replaces the backoff sleeper. Tests use it to skip real waits.
func (s *Service) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Service {
	s.sleep = fn
	return s
}

// Lookup walks every source over every search variant of cardName and returns
// the first usable price. A nil price with a nil error is a clean "not found".
// An error is returned only when no source ever answered cleanly.
func (s *Service) Lookup(ctx context.Context, cardName string) (Result, error) {
	res := Result{CardName: cardName}
	variants := SearchVariants(cardName)
	if len(variants) == 0 {
		return res, nil
	}

	key := cacheKey(cardName)
	if s.cache != nil {
		var cached float64
		if err := s.cache.CacheGet(ctx, key, &cached); err == nil && cached > 0 {
			s.log.Debug().Str("card", cardName).Msg("price cache hit")
			res.Price = &cached
			return res, nil
		}
	}

	var (
		lastErr  error
		answered bool
	)
	for _, src := range s.sources {
		for _, term := range variants {
			p, err := s.lookupWithRetry(ctx, src, term)
			if err == nil {
				answered = true
				if p != nil {
					s.log.Info().Str("card", cardName).Str("term", term).Str("source", src.Name()).Float64("price", *p).Msg("price found")
					res.Price = p
					if s.cache != nil {
						_ = s.cache.CacheSet(ctx, key, *p, cacheTTLSeconds)
					}
					return res, nil
				}
				continue
			}
			lastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			if errors.Is(err, browser.ErrSessionUnavailable) {
				s.log.Warn().Str("card", cardName).Str("source", src.Name()).Msg("no browser session, skipping source")
				break
			}
			s.log.Info().Str("card", cardName).Str("term", term).Str("source", src.Name()).Str("error", err.Error()).Msg("price lookup failed, trying next variant")
		}
	}

	if answered || lastErr == nil {
		s.log.Info().Str("card", cardName).Msg("price not found")
		return res, nil
	}
	return res, lastErr
}

func (s *Service) lookupWithRetry(ctx context.Context, src Source, term string) (*float64, error) {
	for attempt := 0; ; attempt++ {
		p, err := src.Lookup(ctx, term)
		if err == nil {
			if p != nil && *p <= 0 {
				return nil, nil
			}
			return p, nil
		}
		if !errors.Is(err, ErrTransient) || attempt >= s.opts.MaxRetries {
			return nil, err
		}
		s.log.Warn().Str("term", term).Str("source", src.Name()).Int("attempt", attempt+1).Str("error", err.Error()).Msg("transient failure, retrying")
		if err := s.sleep(ctx, s.opts.Backoff); err != nil {
			return nil, err
		}
	}
}

func cacheKey(cardName string) string {
	return "price:" + strings.ToLower(strings.Join(strings.Fields(cardName), " "))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
