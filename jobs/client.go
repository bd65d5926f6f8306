package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/aurum-erp/aurum/internal/sales"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// Enqueue submits a prepared task.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueReceipt queues WhatsApp delivery of a sale receipt.
func (c *Client) EnqueueReceipt(ctx context.Context, r sales.Receipt) error {
	task, err := NewSendReceiptTask(r)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}

// EnqueuePaymentConfirm queues a status poll for a payment session. A poll
// already queued for the session is left in place.
func (c *Client) EnqueuePaymentConfirm(ctx context.Context, sessionID string) error {
	task, err := NewPaymentConfirmTask(sessionID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
