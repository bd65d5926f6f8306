package register

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/shared"
)

// MethodCash is the payment method that moves drawer cash.
const MethodCash = "cash"

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShift(ctx context.Context, id string) (Shift, error)
	CurrentShift(ctx context.Context, register string) (Shift, error)
	ListShifts(ctx context.Context, register string, limit int) ([]Shift, error)
	ListOperations(ctx context.Context, shiftID string) ([]Operation, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service manages register shifts and the cash drawer.
type Service struct {
	repo     RepositoryPort
	activity ActivityRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, activity ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, activity: activity, validate: validator.New(), logger: logger, now: time.Now}
}

// Open starts a shift. Only one shift per register may be open.
func (s *Service) Open(ctx context.Context, actorID string, in OpenInput) (Shift, error) {
	in.Register = strings.ToUpper(strings.TrimSpace(in.Register))
	if err := s.validate.Struct(in); err != nil {
		return Shift{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.OpeningFloat.IsNegative() {
		return Shift{}, fmt.Errorf("%w: opening float cannot be negative", ErrInvalidInput)
	}
	var shift Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		shift, err = tx.InsertShift(ctx, Shift{Register: in.Register, OpenedBy: actorID, OpeningFloat: in.OpeningFloat, Notes: in.Notes})
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, actorID, "register.opened", shift.ID, map[string]any{"register": shift.Register, "float": shift.OpeningFloat.String()})
	return shift, nil
}

// Current returns the open shift of a register.
func (s *Service) Current(ctx context.Context, register string) (Shift, error) {
	return s.repo.CurrentShift(ctx, strings.ToUpper(strings.TrimSpace(register)))
}

// Get returns a shift.
func (s *Service) Get(ctx context.Context, id string) (Shift, error) {
	return s.repo.GetShift(ctx, id)
}

// List returns recent shifts.
func (s *Service) List(ctx context.Context, register string, limit int) ([]Shift, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListShifts(ctx, strings.ToUpper(strings.TrimSpace(register)), limit)
}

// RecordCash records a manual cash in or out on an open shift.
func (s *Service) RecordCash(ctx context.Context, actorID, shiftID string, in CashInput) (Operation, error) {
	if err := s.validate.Struct(in); err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Amount.IsPositive() {
		return Operation{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	amount := in.Amount
	if in.Type == OpCashOut {
		amount = amount.Neg()
	}
	var op Operation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		op, err = s.Post(ctx, tx, Operation{
			ShiftID: shiftID, Type: in.Type, Method: MethodCash, Amount: amount, Reason: in.Reason, CreatedBy: actorID,
		})
		return err
	})
	if err != nil {
		return Operation{}, err
	}
	s.record(ctx, actorID, "register."+string(in.Type), shiftID, map[string]any{"amount": amount.String(), "reason": in.Reason})
	return op, nil
}

// Post appends an operation to an open shift inside tx. Cash operations
// change the expected drawer balance atomically.
func (s *Service) Post(ctx context.Context, tx TxRepository, op Operation) (Operation, error) {
	if op.ShiftID == "" {
		return Operation{}, ErrShiftClosed
	}
	if _, err := tx.LockOpenShift(ctx, op.ShiftID); err != nil {
		return Operation{}, err
	}
	if op.Method == "" {
		op.Method = MethodCash
	}
	if op.Method == MethodCash && !op.Amount.IsZero() {
		if _, err := tx.AddExpected(ctx, op.ShiftID, op.Amount); err != nil {
			return Operation{}, err
		}
	}
	return tx.InsertOperation(ctx, op)
}

// Close records the blind count and closes the shift. A variance above 5%
// of expected cash is critical and must be explained in notes.
func (s *Service) Close(ctx context.Context, actorID, shiftID string, in CloseInput) (Shift, error) {
	if err := s.validate.Struct(in); err != nil {
		return Shift{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.CountedCash.IsNegative() {
		return Shift{}, fmt.Errorf("%w: counted cash cannot be negative", ErrInvalidInput)
	}
	var closed Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.LockOpenShift(ctx, shiftID)
		if err != nil {
			return err
		}
		counted := in.CountedCash
		variance := counted.Sub(shift.ExpectedCash)
		class := ClassifyVariance(variance, shift.ExpectedCash)
		notes := strings.TrimSpace(in.Notes)
		if class == VarianceCritical && notes == "" {
			return ErrNotesRequired
		}
		now := s.now().UTC()
		shift.Status = ShiftClosed
		shift.CountedCash = &counted
		shift.Variance = &variance
		shift.VarianceClass = class
		if notes != "" {
			shift.Notes = notes
		}
		shift.ClosedAt = &now
		shift.ClosedBy = actorID
		if err := tx.CloseShift(ctx, shift); err != nil {
			return err
		}
		closed = shift
		return nil
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, actorID, "register.closed", shiftID, map[string]any{
		"expected": closed.ExpectedCash.String(), "counted": closed.CountedCash.String(), "class": closed.VarianceClass,
	})
	return closed, nil
}

// Report summarises a shift's operations.
func (s *Service) Report(ctx context.Context, shiftID string) (ShiftReport, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return ShiftReport{}, err
	}
	ops, err := s.repo.ListOperations(ctx, shiftID)
	if err != nil {
		return ShiftReport{}, err
	}
	report := ShiftReport{
		Shift:    shift,
		ByType:   map[OperationType]decimal.Decimal{},
		ByMethod: map[string]decimal.Decimal{},
		Count:    len(ops),
	}
	for _, op := range ops {
		report.ByType[op.Type] = report.ByType[op.Type].Add(op.Amount)
		report.ByMethod[op.Method] = report.ByMethod[op.Method].Add(op.Amount)
	}
	return report, nil
}

// ClassifyVariance grades a count difference against expected cash:
// up to 1% is normal, up to 5% a warning, anything more critical. Any
// difference on an empty drawer is critical.
func ClassifyVariance(variance, expected decimal.Decimal) string {
	if variance.IsZero() {
		return VarianceNormal
	}
	if expected.IsZero() {
		return VarianceCritical
	}
	pct := variance.Abs().Div(expected).Mul(decimal.NewFromInt(100))
	switch {
	case pct.LessThanOrEqual(decimal.NewFromInt(1)):
		return VarianceNormal
	case pct.LessThanOrEqual(decimal.NewFromInt(5)):
		return VarianceWarning
	default:
		return VarianceCritical
	}
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "shift", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("register: activity log", slog.String("action", action), slog.Any("error", err))
	}
}
