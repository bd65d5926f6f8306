package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aurum-erp/aurum/internal/sales"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries payment confirmation.
	QueueCritical = "critical"

	// TaskMessagingSend delivers a sale receipt over WhatsApp.
	TaskMessagingSend = "messaging:send"
	// TaskPaymentConfirm polls the gateway until a payment session finishes.
	// An empty session id sweeps every open session.
	TaskPaymentConfirm = "payment:confirm"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// PaymentConfirmTimeout bounds one confirm run: 40 polls 3s apart plus slack.
const PaymentConfirmTimeout = 3 * time.Minute

// SendReceiptPayload is the payload of TaskMessagingSend.
type SendReceiptPayload struct {
	Receipt sales.Receipt `json:"receipt"`
}

// PaymentConfirmPayload is the payload of TaskPaymentConfirm.
type PaymentConfirmPayload struct {
	SessionID string `json:"session_id,omitempty"`
}

// IdempotencyCleanupPayload is the payload of TaskIdempotencyCleanup.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewSendReceiptTask builds a receipt delivery task.
func NewSendReceiptTask(r sales.Receipt) (*asynq.Task, error) {
	data, err := json.Marshal(SendReceiptPayload{Receipt: r})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMessagingSend, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPaymentConfirmTask builds a confirm task. Tasks for one session share an
// id so a session is never queued twice.
func NewPaymentConfirmTask(sessionID string) (*asynq.Task, error) {
	data, err := json.Marshal(PaymentConfirmPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(3), asynq.Timeout(PaymentConfirmTimeout)}
	if sessionID != "" {
		opts = append(opts, asynq.TaskID("payment-confirm:"+sessionID))
	}
	return asynq.NewTask(TaskPaymentConfirm, data, opts...), nil
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThanHours: int(olderThan / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
