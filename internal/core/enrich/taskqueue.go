package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"cardmarket/internal/logger"
	"cardmarket/internal/platform/tasks"
)

type uniqueEnqueuer interface {
	EnqueueUnique(task *asynq.Task, queue, id string, timeout time.Duration) (bool, error)
}

// TaskQueue puts jobs on the redis-backed asynq queue. The listing id is the
// task id, so a listing already queued or running is rejected by the broker.
type TaskQueue struct {
	log     *logger.Logger
	client  uniqueEnqueuer
	timeout time.Duration
	now     func() time.Time
}

func NewTaskQueue(client uniqueEnqueuer, jobTimeout time.Duration) *TaskQueue {
	return &TaskQueue{log: logger.New("EnrichTasks"), client: client, timeout: jobTimeout, now: time.Now}
}

func (q *TaskQueue) Enqueue(_ context.Context, listingID, cardName string) (bool, error) {
	payload, err := json.Marshal(Job{ListingID: listingID, CardName: cardName, EnqueuedAt: q.now().UTC()})
	if err != nil {
		return false, err
	}
	ok, err := q.client.EnqueueUnique(asynq.NewTask(tasks.TaskTypeEnrich, payload), tasks.QueueDefault, listingID, q.timeout)
	if err != nil {
		return false, fmt.Errorf("enqueue enrichment for %s: %w", listingID, err)
	}
	if ok {
		q.log.LogDebugf("queued %s (%q)", listingID, cardName)
	}
	return ok, nil
}

// HandleTask adapts p to the asynq handler signature. Processing failures are
// logged and swallowed: the outcome already lives on the listing, and a
// retried or archived task would keep the listing id locked.
func HandleTask(p Processor) func(ctx context.Context, task *asynq.Task) error {
	log := logger.New("EnrichWorker")
	return func(ctx context.Context, task *asynq.Task) error {
		var job Job
		if err := json.Unmarshal(task.Payload(), &job); err != nil {
			log.LogErrorf("bad enrichment payload: %v", err)
			return fmt.Errorf("decode job: %v: %w", err, asynq.SkipRetry)
		}
		if err := p.Process(ctx, job.ListingID, job.CardName); err != nil {
			log.LogErrorf("enrichment of %s failed: %v", job.ListingID, err)
		}
		return nil
	}
}
