package enrich

import (
	"context"

	"cardmarket/internal/core/listing"
	"cardmarket/internal/logger"
	"cardmarket/internal/utils/detached"
)

// Scanner re-queues listings that a read path found still missing data.
type Scanner struct {
	log    *logger.Logger
	queue  Queue
	runner *detached.Runner
}

func NewScanner(queue Queue, runner *detached.Runner) *Scanner {
	return &Scanner{log: logger.New("SelfHeal"), queue: queue, runner: runner}
}

// Scan enqueues every listing that needs enrichment and returns how many were
// newly queued. Enqueue errors are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, listings []*listing.Listing) int {
	queued := 0
	for _, l := range listings {
		if l == nil || !listing.NeedsEnrichment(l) {
			continue
		}
		ok, err := s.queue.Enqueue(ctx, l.ID, l.CardName)
		if err != nil {
			s.log.LogWarnf("self-heal enqueue %s: %v", l.ID, err)
			continue
		}
		if ok {
			queued++
		}
	}
	if queued > 0 {
		s.log.LogInfof("self-heal queued %d of %d listings", queued, len(listings))
	}
	return queued
}

// ScanDetached runs Scan in the background so the caller's response is not held up.
func (s *Scanner) ScanDetached(listings []*listing.Listing) {
	if len(listings) == 0 {
		return
	}
	snapshot := make([]*listing.Listing, 0, len(listings))
	for _, l := range listings {
		if l != nil {
			snapshot = append(snapshot, l.Clone())
		}
	}
	s.runner.Go("self-heal", func(ctx context.Context) error {
		s.Scan(ctx, snapshot)
		return nil
	})
}
