package image

import (
	"context"
	"errors"
	"strings"

	"cardmarket/internal/logger"
)

// Provider is one image source. Lookup returns ("", nil) when the source
// answered but had no image.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, cardName string) (string, error)
}

type Cache interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttlSeconds int) error
}

const cacheTTLSeconds = 24 * 60 * 60

type Service struct {
	log       *logger.Logger
	providers []Provider
	cache     Cache
}

// NewService tries providers in order until one returns a URL.
func NewService(providers ...Provider) *Service {
	return &Service{log: logger.New("ImageService"), providers: providers}
}

func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// Lookup returns the first image URL any provider finds. An empty URL with a
// nil error is a clean "not found"; an error means no provider answered.
func (s *Service) Lookup(ctx context.Context, cardName string) (string, error) {
	name := strings.TrimSpace(cardName)
	if name == "" {
		return "", nil
	}
	key := "image:" + strings.ToLower(strings.Join(strings.Fields(name), " "))
	if s.cache != nil {
		var cached string
		if err := s.cache.CacheGet(ctx, key, &cached); err == nil && cached != "" {
			return cached, nil
		}
	}

	var (
		errs     []error
		answered bool
	)
	for _, p := range s.providers {
		url, err := p.Lookup(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			s.log.Warn().Str("card", name).Str("provider", p.Name()).Str("error", err.Error()).Msg("image provider failed")
			errs = append(errs, err)
			continue
		}
		answered = true
		if url != "" {
			s.log.Info().Str("card", name).Str("provider", p.Name()).Str("url", url).Msg("image found")
			if s.cache != nil {
				_ = s.cache.CacheSet(ctx, key, url, cacheTTLSeconds)
			}
			return url, nil
		}
	}
	if answered || len(errs) == 0 {
		return "", nil
	}
	return "", errors.Join(errs...)
}
