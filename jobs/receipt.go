package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aurum-erp/aurum/internal/jobs"
	"github.com/aurum-erp/aurum/internal/messaging"
	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/report"
)

// MessageSender delivers a WhatsApp text.
type MessageSender interface {
	SendMessage(ctx context.Context, phone, text string) (messaging.SendResult, error)
}

// ReceiptJob sends sale receipts through the WhatsApp sidecar.
type ReceiptJob struct {
	Sender    MessageSender
	StoreName string
	Currency  string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// FormatReceipt renders the receipt text sent to customers.
func FormatReceipt(r sales.Receipt, storeName, currencyCode string) string {
	symbol := report.CurrencySymbol(currencyCode)
	var b strings.Builder
	if storeName != "" {
		fmt.Fprintf(&b, "*%s*\n", storeName)
	}
	fmt.Fprintf(&b, "Receipt %s\n", r.Number)
	if !r.At.IsZero() {
		fmt.Fprintf(&b, "%s\n", r.At.Format("02 Jan 2006 15:04"))
	}
	b.WriteString("\n")
	for _, l := range r.Lines {
		fmt.Fprintf(&b, "%s x %s  %s\n", l.Name, l.Quantity.String(), report.Money(symbol, l.LineTotal))
	}
	b.WriteString("\n")
	if r.Tax.IsPositive() {
		fmt.Fprintf(&b, "Tax: %s\n", report.Money(symbol, r.Tax))
	}
	fmt.Fprintf(&b, "*Total: %s*\n", report.Money(symbol, r.Total))
	b.WriteString("\nThank you for shopping with us.")
	return b.String()
}

// Handle processes TaskMessagingSend tasks.
func (j *ReceiptJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sender == nil {
		return errors.New("receipt: handler not configured")
	}
	var payload SendReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("receipt: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskMessagingSend)
	defer func() { resultErr = tracker.End(resultErr) }()

	r := payload.Receipt
	logger := j.logger().With(slog.String("sale", r.SaleID), slog.String("number", r.Number))
	if messaging.NormalizePhone(r.Phone) == "" {
		logger.Warn("receipt skipped: no usable phone")
		return nil
	}
	res, err := j.Sender.SendMessage(ctx, r.Phone, FormatReceipt(r, j.StoreName, j.Currency))
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			logger.Warn("receipt rejected by sidecar", slog.Any("error", err))
			return fmt.Errorf("receipt: %v: %w", err, asynq.SkipRetry)
		}
		logger.Warn("receipt delivery failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskMessagingSend, 1)
	logger.Info("receipt sent", slog.String("message_id", res.MessageID))
	return nil
}

func (j *ReceiptJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
