package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cardmarket/internal/logger"
)

var ErrQueueClosed = errors.New("enrichment queue closed")

// Job is one unit of enrichment work. ListingID is its identity.
type Job struct {
	ListingID  string    `json:"listingId"`
	CardName   string    `json:"cardName"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue accepts enrichment jobs. Enqueue reports false when a job for the
// listing is already queued or running.
type Queue interface {
	Enqueue(ctx context.Context, listingID, cardName string) (bool, error)
}

// Processor runs a single job.
type Processor interface {
	Process(ctx context.Context, listingID, cardName string) error
}

type MemoryQueueOptions struct {
	Concurrency int
	// JobTimeout bounds one Process call; zero means no bound.
	JobTimeout time.Duration
	// OnDrain runs whenever the last running job finishes with nothing queued.
	OnDrain func()
}

// MemoryQueue is an in-process FIFO with per-listing dedup, drained by a fixed
// number of workers. Jobs are lost on restart.
type MemoryQueue struct {
	log  *logger.Logger
	proc Processor
	opts MemoryQueueOptions
	now  func() time.Time

	mu       sync.Mutex
	pending  []Job
	active   map[string]struct{}
	inflight int
	closed   bool

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemoryQueue(proc Processor, opts MemoryQueueOptions) *MemoryQueue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &MemoryQueue{
		log:    logger.New("EnrichQueue"),
		proc:   proc,
		opts:   opts,
		now:    time.Now,
		active: make(map[string]struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// Start launches the workers. They stop when ctx ends or Stop is called.
func (q *MemoryQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.Concurrency; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	q.log.LogInfof("enrichment queue started with %d workers", q.opts.Concurrency)
}

// Stop refuses new jobs, waits for running ones, and drops the backlog.
func (q *MemoryQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	dropped := len(q.pending)
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	if dropped > 0 {
		q.log.LogWarnf("enrichment queue stopped with %d jobs left for self-heal", dropped)
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, listingID, cardName string) (bool, error) {
	if strings.TrimSpace(listingID) == "" {
		return false, fmt.Errorf("enqueue: empty listing id")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrQueueClosed
	}
	if _, dup := q.active[listingID]; dup {
		q.mu.Unlock()
		return false, nil
	}
	q.active[listingID] = struct{}{}
	q.pending = append(q.pending, Job{ListingID: listingID, CardName: cardName, EnqueuedAt: q.now()})
	depth := len(q.pending)
	q.mu.Unlock()

	q.signal()
	q.log.LogDebugf("queued %s (%q), depth %d", listingID, cardName, depth)
	return true, nil
}

// Stats reports queued and running job counts.
func (q *MemoryQueue) Stats() (queued, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), q.inflight
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		job, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.run(ctx, job)
		if ctx.Err() != nil {
			return
		}
	}
}

func (q *MemoryQueue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		return Job{}, false
	}
	job := q.pending[0]
	q.pending[0] = Job{}
	q.pending = q.pending[1:]
	q.inflight++
	if len(q.pending) > 0 {
		// more work behind this one, make sure another idle worker looks
		q.signal()
	}
	return job, true
}

func (q *MemoryQueue) run(ctx context.Context, job Job) {
	defer q.finish(job)

	jctx := ctx
	if q.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, q.opts.JobTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			q.log.LogErrorf("enrichment of %s panicked: %v", job.ListingID, p)
		}
	}()

	started := q.now()
	if err := q.proc.Process(jctx, job.ListingID, job.CardName); err != nil {
		q.log.LogErrorf("enrichment of %s failed: %v", job.ListingID, err)
		return
	}
	q.log.LogDebugf("enrichment of %s done in %v (waited %v)", job.ListingID, q.now().Sub(started), started.Sub(job.EnqueuedAt))
}

func (q *MemoryQueue) finish(job Job) {
	q.mu.Lock()
	delete(q.active, job.ListingID)
	q.inflight--
	drained := q.inflight == 0 && len(q.pending) == 0
	q.mu.Unlock()

	if drained && q.opts.OnDrain != nil {
		q.opts.OnDrain()
	}
}
