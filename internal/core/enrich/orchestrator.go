package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cardmarket/internal/core/listing"
	"cardmarket/internal/core/live"
	"cardmarket/internal/core/price"
	"cardmarket/internal/logger"
)

// ErrPersistence marks a job that could not write its status or result. The
// listing keeps whatever it had and self-heal picks it up again.
var ErrPersistence = errors.New("listing persistence failure")

type PriceLookup interface {
	Lookup(ctx context.Context, cardName string) (price.Result, error)
}

type ImageLookup interface {
	Lookup(ctx context.Context, cardName string) (string, error)
}

// Publisher is the live update channel as seen by the orchestrator.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// UpdatedPayload is the body of a post.updated event.
type UpdatedPayload struct {
	ID   string           `json:"id"`
	Post *listing.Listing `json:"post"`
}

// Service is the enrichment orchestrator: it decides what a listing is missing,
// runs the lookups, and records the outcome per field.
type Service struct {
	log       *logger.Logger
	store     listing.Store
	prices    PriceLookup
	images    ImageLookup
	publisher Publisher
}

func NewService(store listing.Store, prices PriceLookup, images ImageLookup, publisher Publisher) *Service {
	return &Service{
		log:       logger.New("Enrichment"),
		store:     store,
		prices:    prices,
		images:    images,
		publisher: publisher,
	}
}

type fieldOutcome struct {
	status listing.FieldStatus
	err    string
}

// Process enriches one listing. A listing that no longer exists is skipped
// without error. Lookup failures are recorded on the listing, not returned.
func (s *Service) Process(ctx context.Context, listingID, cardName string) error {
	l, err := s.store.GetByID(ctx, listingID)
	if errors.Is(err, listing.ErrNotFound) {
		s.log.LogDebugf("listing %s is gone, abandoning job", listingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read listing %s: %v", ErrPersistence, listingID, err)
	}
	if strings.TrimSpace(cardName) == "" {
		cardName = l.CardName
	}

	needPrice, needImage := listing.NeedsPrice(l), listing.NeedsImage(l)
	if !needPrice && !needImage {
		return nil
	}

	status := l.Enrichment
	status.LastError = nil
	if needPrice {
		status.PriceStatus = listing.StatusPending
	}
	if needImage {
		status.ImageStatus = listing.StatusPending
	}
	if err := s.store.UpdateFields(ctx, listingID, listing.Fields{Enrichment: &status}); err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: mark pending %s: %v", ErrPersistence, listingID, err)
	}

	log := s.log.With("listing", listingID)
	log.Info().Str("card", cardName).Bool("price", needPrice).Bool("image", needImage).Msg("enrichment started")

	var (
		wg     sync.WaitGroup
		update listing.Fields
	)
	var priceResult, imageResult fieldOutcome
	if needPrice {
		wg.Add(1)
		go func() {
			defer wg.Done()
			priceResult = s.enrichPrice(ctx, cardName, &update)
		}()
	}
	if needImage {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageResult = s.enrichImage(ctx, cardName, &update)
		}()
	}
	wg.Wait()

	var problems []string
	if needPrice {
		status.PriceStatus = priceResult.status
		if priceResult.err != "" {
			problems = append(problems, priceResult.err)
		}
	}
	if needImage {
		status.ImageStatus = imageResult.status
		if imageResult.err != "" {
			problems = append(problems, imageResult.err)
		}
	}
	if len(problems) > 0 {
		msg := strings.Join(problems, "; ")
		status.LastError = &msg
	}
	update.Enrichment = &status

	// the job's own deadline may have passed; the result still has to land
	writeCtx := context.WithoutCancel(ctx)
	if err := s.store.UpdateFields(writeCtx, listingID, update); err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: write result %s: %v", ErrPersistence, listingID, err)
	}
	log.Info().Str("price_status", status.PriceStatus.String()).Str("image_status", status.ImageStatus.String()).Msg("enrichment finished")

	s.broadcast(writeCtx, listingID)
	return nil
}

// enrichPrice and enrichImage each touch only their own members of update.
func (s *Service) enrichPrice(ctx context.Context, cardName string, update *listing.Fields) fieldOutcome {
	res, err := s.prices.Lookup(ctx, cardName)
	if err != nil {
		return fieldOutcome{status: listing.StatusError, err: "price lookup failed: " + err.Error()}
	}
	if res.Price == nil {
		return fieldOutcome{status: listing.StatusError, err: fmt.Sprintf("%v for %q", price.ErrNotFound, cardName)}
	}
	p := *res.Price
	api := true
	update.Price = &p
	update.IsAPIPrice = &api
	return fieldOutcome{status: listing.StatusDone}
}

func (s *Service) enrichImage(ctx context.Context, cardName string, update *listing.Fields) fieldOutcome {
	url, err := s.images.Lookup(ctx, cardName)
	if err != nil {
		return fieldOutcome{status: listing.StatusError, err: "image lookup failed: " + err.Error()}
	}
	if url == "" {
		return fieldOutcome{status: listing.StatusError, err: fmt.Sprintf("no card image found for %q", cardName)}
	}
	update.CardImageURL = &url
	return fieldOutcome{status: listing.StatusDone}
}

func (s *Service) broadcast(ctx context.Context, listingID string) {
	if s.publisher == nil {
		return
	}
	fresh, err := s.store.GetByID(ctx, listingID)
	if err != nil {
		s.log.LogWarnf("refresh %s for broadcast: %v", listingID, err)
		return
	}
	if err := s.publisher.Publish(ctx, live.EventListingUpdated, UpdatedPayload{ID: listingID, Post: fresh}); err != nil {
		s.log.LogWarnf("broadcast %s: %v", listingID, err)
	}
}
