package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

// RepositoryPort abstracts persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, customerID string) (Account, error)
	ListTransactions(ctx context.Context, customerID string, limit int) ([]Transaction, error)
}

// RulesSource loads stored settings.
type RulesSource interface {
	Decode(ctx context.Context, key string, dst any) (bool, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service applies loyalty rules.
type Service struct {
	repo     RepositoryPort
	rules    RulesSource
	activity ActivityRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs Service. rules may be nil to always use DefaultRules.
func NewService(repo RepositoryPort, rules RulesSource, activity ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, rules: rules, activity: activity, validate: validator.New(), logger: logger}
}

// Rules returns the stored rules or the defaults.
func (s *Service) Rules(ctx context.Context) Rules {
	rules := DefaultRules()
	if s.rules == nil {
		return rules
	}
	var stored Rules
	found, err := s.rules.Decode(ctx, settings.KeyLoyaltyRules, &stored)
	if err != nil {
		s.logger.Warn("loyalty: load rules, using defaults", slog.Any("error", err))
		return rules
	}
	if !found {
		return rules
	}
	if stored.SpendPerPoint.IsPositive() {
		rules.SpendPerPoint = stored.SpendPerPoint
	}
	if stored.PointValue.IsPositive() {
		rules.PointValue = stored.PointValue
	}
	if stored.MinRedeem > 0 {
		rules.MinRedeem = stored.MinRedeem
	}
	if len(stored.Tiers) > 0 {
		rules.Tiers = stored.Tiers
	}
	return rules
}

// Account returns a customer's balance. Customers who never earned get an
// empty account in the lowest tier.
func (s *Service) Account(ctx context.Context, customerID string) (Account, error) {
	a, err := s.repo.GetAccount(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return Account{CustomerID: customerID, Tier: s.Rules(ctx).TierFor(0)}, nil
	}
	return a, err
}

// History returns recent transactions.
func (s *Service) History(ctx context.Context, customerID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListTransactions(ctx, customerID, limit)
}

// Accrue earns points for spend against a reference. A reference earns once;
// a repeat returns ErrAlreadyApplied. Zero-point spend is a no-op.
func (s *Service) Accrue(ctx context.Context, actorID, customerID string, spend decimal.Decimal, refType, refID string) (Transaction, error) {
	if customerID == "" {
		return Transaction{}, fmt.Errorf("%w: customer required", ErrInvalidInput)
	}
	rules := s.Rules(ctx)
	points := rules.PointsFor(spend)
	if points == 0 {
		return Transaction{}, nil
	}
	return s.apply(ctx, rules, Transaction{
		CustomerID: customerID, Type: TxEarn, Points: points, RefType: refType, RefID: refID, CreatedBy: actorID,
		Note: "earned on " + spend.StringFixed(2),
	}, points)
}

// Reverse takes back up to points earned earlier, never below a zero balance.
// The returned transaction carries the points actually reversed.
func (s *Service) Reverse(ctx context.Context, actorID, customerID string, points int64, refType, refID string) (Transaction, error) {
	if points <= 0 || customerID == "" {
		return Transaction{}, nil
	}
	rules := s.Rules(ctx)
	var out Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.LockAccount(ctx, customerID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		applied := min(points, acct.Points)
		if applied == 0 {
			return nil
		}
		out, err = s.post(ctx, tx, rules, Transaction{
			CustomerID: customerID, Type: TxReverse, Points: -applied, RefType: refType, RefID: refID, CreatedBy: actorID,
			Note: fmt.Sprintf("reversed %d of %d", applied, points),
		}, -applied)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if out.ID != "" {
		s.record(ctx, actorID, "loyalty.reversed", out)
	}
	return out, nil
}

// Redeem spends points and returns their currency value.
func (s *Service) Redeem(ctx context.Context, actorID, customerID string, in RedeemInput) (Transaction, decimal.Decimal, error) {
	if err := s.validate.Struct(in); err != nil {
		return Transaction{}, decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rules := s.Rules(ctx)
	if in.Points < rules.MinRedeem {
		return Transaction{}, decimal.Zero, ErrBelowMinimum
	}
	t, err := s.apply(ctx, rules, Transaction{
		CustomerID: customerID, Type: TxRedeem, Points: -in.Points, RefType: in.RefType, RefID: in.RefID, Note: in.Note, CreatedBy: actorID,
	}, 0)
	if err != nil {
		return Transaction{}, decimal.Zero, err
	}
	return t, rules.PointValue.Mul(decimal.NewFromInt(in.Points)), nil
}

// Adjust applies a manual correction.
func (s *Service) Adjust(ctx context.Context, actorID, customerID string, in AdjustInput) (Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	earned := int64(0)
	if in.Points > 0 {
		earned = in.Points
	}
	return s.apply(ctx, s.Rules(ctx), Transaction{
		CustomerID: customerID, Type: TxAdjust, Points: in.Points, Note: in.Note, CreatedBy: actorID,
	}, earned)
}

func (s *Service) apply(ctx context.Context, rules Rules, t Transaction, earned int64) (Transaction, error) {
	var out Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.post(ctx, tx, rules, t, earned)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, t.CreatedBy, "loyalty."+string(t.Type), out)
	return out, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, rules Rules, t Transaction, earned int64) (Transaction, error) {
	acct, err := tx.AddPoints(ctx, t.CustomerID, t.Points, earned)
	if err != nil {
		return Transaction{}, err
	}
	if tier := rules.TierFor(acct.LifetimePoints); tier != acct.Tier {
		if err := tx.SetTier(ctx, t.CustomerID, tier); err != nil {
			return Transaction{}, err
		}
	}
	t.Balance = acct.Points
	return tx.InsertTransaction(ctx, t)
}

func (s *Service) record(ctx context.Context, actorID, action string, t Transaction) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, shared.ActivityEntry{
		ActorID: actorID, Action: action, Entity: "loyalty_transaction", EntityID: t.ID,
		Meta: map[string]any{"customer_id": t.CustomerID, "points": t.Points, "ref_id": t.RefID},
	})
	if err != nil {
		s.logger.Warn("loyalty: activity log", slog.Any("error", err))
	}
}
