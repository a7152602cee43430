package tasks

import (
	"errors"
	"time"

	"cardmarket/internal/platform/redis"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeEnrich = "listing:enrich"
	QueueDefault   = "default"
)

type Client struct{ c *asynq.Client }

func New(r *redis.Service) *Client { return &Client{c: asynq.NewClient(r.AsynqRedisOpt())} }

func (t *Client) Close() error { return t.c.Close() }

// EnqueueUnique enqueues task under id. It reports false without error when a
// task with the same id is still queued or running.
func (t *Client) EnqueueUnique(task *asynq.Task, queue, id string, timeout time.Duration) (bool, error) {
	opts := []asynq.Option{asynq.Queue(queue), asynq.TaskID(id), asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	_, err := t.c.Enqueue(task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
