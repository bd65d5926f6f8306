package loyalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// TxType classifies points movements.
type TxType string

const (
	TxEarn    TxType = "earn"
	TxRedeem  TxType = "redeem"
	TxReverse TxType = "reverse"
	TxAdjust  TxType = "adjust"
)

// Account is a customer's points balance.
type Account struct {
	CustomerID     string    `json:"customer_id"`
	Points         int64     `json:"points"`
	LifetimePoints int64     `json:"lifetime_points"`
	Tier           string    `json:"tier"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Transaction is one points movement. Points is signed.
type Transaction struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Type       TxType    `json:"type"`
	Points     int64     `json:"points"`
	Balance    int64     `json:"balance"`
	RefType    string    `json:"ref_type,omitempty"`
	RefID      string    `json:"ref_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Tier is a named threshold on lifetime points.
type Tier struct {
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
}

// Rules configure accrual and redemption. They are stored in store settings.
type Rules struct {
	// SpendPerPoint is the amount of spend that earns one point.
	SpendPerPoint decimal.Decimal `json:"spend_per_point"`
	// PointValue is the currency value of one point when redeemed.
	PointValue decimal.Decimal `json:"point_value"`
	// MinRedeem is the smallest redemption accepted.
	MinRedeem int64  `json:"min_redeem"`
	Tiers     []Tier `json:"tiers"`
}

// DefaultRules apply when no rules are stored.
func DefaultRules() Rules {
	return Rules{
		SpendPerPoint: decimal.NewFromInt(100),
		PointValue:    decimal.NewFromInt(1),
		MinRedeem:     100,
		Tiers: []Tier{
			{Name: "silver", MinPoints: 0},
			{Name: "gold", MinPoints: 5000},
			{Name: "platinum", MinPoints: 20000},
		},
	}
}

// PointsFor returns the points earned by spend, rounded down.
func (r Rules) PointsFor(spend decimal.Decimal) int64 {
	if !r.SpendPerPoint.IsPositive() || !spend.IsPositive() {
		return 0
	}
	return spend.Div(r.SpendPerPoint).Floor().IntPart()
}

// TierFor returns the highest tier reached by lifetime points.
func (r Rules) TierFor(lifetime int64) string {
	tier := ""
	var best int64 = -1
	for _, t := range r.Tiers {
		if lifetime >= t.MinPoints && t.MinPoints > best {
			tier, best = t.Name, t.MinPoints
		}
	}
	return tier
}

// RedeemInput spends points.
type RedeemInput struct {
	Points  int64  `json:"points" validate:"gt=0"`
	RefType string `json:"ref_type"`
	RefID   string `json:"ref_id"`
	Note    string `json:"note" validate:"max=200"`
}

// AdjustInput is a manual correction.
type AdjustInput struct {
	Points int64  `json:"points" validate:"ne=0"`
	Note   string `json:"note" validate:"required,max=200"`
}

var (
	ErrNotFound           = fmt.Errorf("loyalty: account not found: %w", httpx.ErrNotFound)
	ErrInsufficientPoints = fmt.Errorf("loyalty: insufficient points: %w", httpx.ErrConflict)
	ErrBelowMinimum       = fmt.Errorf("loyalty: redemption below minimum: %w", httpx.ErrValidation)
	ErrInvalidInput       = fmt.Errorf("loyalty: %w", httpx.ErrValidation)
	// ErrAlreadyApplied is returned when a reference was already accrued or reversed.
	ErrAlreadyApplied = fmt.Errorf("loyalty: reference already applied: %w", httpx.ErrDuplicate)
)
