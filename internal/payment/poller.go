package payment

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval is the pause between status calls.
	DefaultPollInterval = 3 * time.Second
	// DefaultPollAttempts bounds the status calls of one session.
	DefaultPollAttempts = 40
)

// Poller confirms a pending session by polling the gateway at a fixed
// interval, then expires it when the attempts run out.
type Poller struct {
	service     *Service
	interval    time.Duration
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger
}

// NewPoller constructs Poller. Zero values pick the defaults.
func NewPoller(service *Service, interval time.Duration, maxAttempts int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{service: service, interval: interval, maxAttempts: maxAttempts, sleep: sleepCtx, logger: logger}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run polls until the session finishes. The attempt budget is stored on the
// session, so a rerun after a crash continues where the last one stopped.
func (p *Poller) Run(ctx context.Context, id string) (Session, error) {
	sess, err := p.service.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	for sess.State == StatePending && sess.Polls < p.maxAttempts {
		if err := p.sleep(ctx, p.interval); err != nil {
			return sess, err
		}
		next, err := p.service.Poll(ctx, id)
		if err != nil {
			p.logger.Warn("payment status poll",
				slog.String("session", id),
				slog.Int("attempt", next.Polls),
				slog.Any("error", err))
			if next.ID == "" {
				return sess, err
			}
		}
		sess = next
	}
	if sess.State != StatePending {
		return sess, nil
	}
	return p.service.Expire(ctx, id)
}
