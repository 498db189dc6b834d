package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeExpenseRollup recomputes a deal's accumulated expenses
	// from its expense rows.
	TaskTypeExpenseRollup = "deal:expense_rollup"
	// TaskTypePaySummaryWarmup refreshes the cached per-member payout
	// summary.
	TaskTypePaySummaryWarmup = "pay:summary_warmup"
)

// ExpenseRollupPayload identifies the deal to recompute.
type ExpenseRollupPayload struct {
	DealID int64 `json:"deal_id"`
}

// NewExpenseRollupTask constructs an Asynq task.
func NewExpenseRollupTask(payload ExpenseRollupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeExpenseRollup, data), nil
}

// NewPaySummaryWarmupTask constructs an Asynq task. The warmup carries
// no payload.
func NewPaySummaryWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskTypePaySummaryWarmup, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueExpenseRollup enqueues a rollup for one deal.
func (c *Client) EnqueueExpenseRollup(ctx context.Context, dealID int64) error {
	task, err := NewExpenseRollupTask(ExpenseRollupPayload{DealID: dealID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueuePaySummaryWarmup enqueues a summary refresh.
func (c *Client) EnqueuePaySummaryWarmup(ctx context.Context) error {
	_, err := c.client.EnqueueContext(ctx, NewPaySummaryWarmupTask(), asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
