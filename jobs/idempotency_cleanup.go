package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aurum-erp/aurum/internal/jobs"
)

// DefaultIdempotencyRetention keeps keys for a week.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// KeyPurger deletes idempotency keys older than a cutoff.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges idempotency keys on a schedule.
type IdempotencyCleanupJob struct {
	Store   KeyPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := DefaultIdempotencyRetention
	if payload.OlderThanHours > 0 {
		retention = time.Duration(payload.OlderThanHours) * time.Hour
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { resultErr = tracker.End(resultErr) }()

	purged, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		j.logger().Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskIdempotencyCleanup, purged)
	j.logger().Info("idempotency cleanup", slog.Int64("purged", purged), slog.Duration("retention", retention))
	return nil
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
