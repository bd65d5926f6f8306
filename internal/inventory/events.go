package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MovementPostedEvent is emitted after a movement commits.
type MovementPostedEvent struct {
	Code       string
	Type       MovementType
	LocationID string
	ProductID  string
	Qty        decimal.Decimal
	Balance    decimal.Decimal
	PostedAt   time.Time
}

// IntegrationHandler receives inventory events.
type IntegrationHandler interface {
	HandleMovementPosted(ctx context.Context, evt MovementPostedEvent) error
}
