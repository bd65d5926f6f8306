package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/aurum-erp/aurum/internal/jobs"
	"github.com/aurum-erp/aurum/internal/payment"
	"github.com/aurum-erp/aurum/internal/platform/cache"
	"github.com/aurum-erp/aurum/internal/shared"
)

const sweepLimit = 200

// PaymentPoller runs the bounded status poll of one session.
type PaymentPoller interface {
	Run(ctx context.Context, id string) (payment.Session, error)
}

// OpenSessions lists sessions still waiting for the gateway.
type OpenSessions interface {
	ListOpen(ctx context.Context, limit int) ([]payment.Session, error)
}

// ConfirmEnqueuer queues one confirm task per session.
type ConfirmEnqueuer interface {
	EnqueuePaymentConfirm(ctx context.Context, sessionID string) error
}

// PaymentConfirmJob advances payment sessions without a browser open. A redis
// lock keeps two workers from polling the same session.
type PaymentConfirmJob struct {
	Poller  PaymentPoller
	Open    OpenSessions
	Queue   ConfirmEnqueuer
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskPaymentConfirm tasks.
func (j *PaymentConfirmJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Poller == nil {
		return errors.New("payment confirm: handler not configured")
	}
	var payload PaymentConfirmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("payment confirm: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskPaymentConfirm)
	defer func() { resultErr = tracker.End(resultErr) }()

	if payload.SessionID == "" {
		return j.sweep(ctx)
	}
	return j.confirm(ctx, payload.SessionID)
}

func (j *PaymentConfirmJob) confirm(ctx context.Context, id string) error {
	logger := j.logger().With(slog.String("session", id))
	if j.Redis != nil {
		key := shared.PaymentPollLockKey(id)
		ok, err := cache.TryLock(ctx, j.Redis, key, PaymentConfirmTimeout)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("payment poll already running")
			return nil
		}
		defer func() {
			if err := cache.Unlock(context.WithoutCancel(ctx), j.Redis, key); err != nil {
				logger.Warn("release payment poll lock", slog.Any("error", err))
			}
		}()
	}
	sess, err := j.Poller.Run(ctx, id)
	if errors.Is(err, payment.ErrNotFound) {
		return fmt.Errorf("payment confirm: %v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	logger.Info("payment confirm finished", slog.String("state", string(sess.State)), slog.Int("polls", sess.Polls))
	return nil
}

func (j *PaymentConfirmJob) sweep(ctx context.Context) error {
	if j.Open == nil || j.Queue == nil {
		return nil
	}
	open, err := j.Open.ListOpen(ctx, sweepLimit)
	if err != nil {
		return err
	}
	queued := 0
	for _, s := range open {
		if s.State != payment.StatePending {
			continue
		}
		if err := j.Queue.EnqueuePaymentConfirm(ctx, s.ID); err != nil {
			j.logger().Warn("requeue payment confirm", slog.String("session", s.ID), slog.Any("error", err))
			continue
		}
		queued++
	}
	j.Metrics.AddItems(TaskPaymentConfirm, int64(queued))
	j.logger().Info("payment sweep", slog.Int("open", len(open)), slog.Int("queued", queued))
	return nil
}

func (j *PaymentConfirmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
