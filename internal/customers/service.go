package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/aurum-erp/aurum/internal/shared"
)

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service implements customer operations.
type Service struct {
	repo     Repository
	activity ActivityRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, activity ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, activity: activity, validate: validator.New(), logger: logger}
}

// Create stores a customer, drawing a code when none is given. Phone numbers
// are unique.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest, createdBy string) (*Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = normalizePhone(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Phone != nil {
		existing, err := s.repo.GetByPhone(ctx, *req.Phone)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check existing customer: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: phone belongs to %s", ErrAlreadyExists, existing.Code)
		}
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		var err error
		if code, err = s.repo.NextCode(ctx); err != nil {
			return nil, err
		}
	}

	customer, err := s.repo.Create(ctx, Customer{
		Code:        code,
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		City:        req.City,
		TaxID:       req.TaxID,
		Birthday:    req.Birthday,
		Anniversary: req.Anniversary,
		Notes:       req.Notes,
		IsActive:    true,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.record(ctx, createdBy, "customer.created", customer.ID, map[string]any{"code": customer.Code})
	return customer, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, actorID, id string, req UpdateCustomerRequest) (*Customer, error) {
	req.Phone = normalizePhone(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	set := func(col string, ok bool, v any) {
		if ok {
			updates[col] = v
		}
	}
	set("name", req.Name != nil, req.Name)
	set("phone", req.Phone != nil, req.Phone)
	set("email", req.Email != nil, req.Email)
	set("address", req.Address != nil, req.Address)
	set("city", req.City != nil, req.City)
	set("tax_id", req.TaxID != nil, req.TaxID)
	set("birthday", req.Birthday != nil, req.Birthday)
	set("anniversary", req.Anniversary != nil, req.Anniversary)
	set("notes", req.Notes != nil, req.Notes)
	set("is_active", req.IsActive != nil, req.IsActive)
	if len(updates) == 0 {
		return existing, nil
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "customer.updated", id, nil)
	return s.repo.Get(ctx, id)
}

// Deactivate soft deletes a customer; sales and invoices keep referencing it.
func (s *Service) Deactivate(ctx context.Context, actorID, id string) error {
	inactive := false
	if err := s.repo.Update(ctx, id, map[string]any{"is_active": &inactive}); err != nil {
		return err
	}
	s.record(ctx, actorID, "customer.deleted", id, nil)
	return nil
}

// Get returns a customer.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	if req.Limit <= 0 || req.Limit > 1000 {
		req.Limit = 50
	}
	req.Search = strings.TrimSpace(req.Search)
	return s.repo.List(ctx, req)
}

// LogInteraction records a contact with a customer.
func (s *Service) LogInteraction(ctx context.Context, actorID, customerID string, req InteractionRequest) (*Interaction, error) {
	req.Summary = strings.TrimSpace(req.Summary)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.repo.Get(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.AddInteraction(ctx, Interaction{
		CustomerID: customerID,
		Type:       req.Type,
		Summary:    req.Summary,
		FollowUpAt: req.FollowUpAt,
		CreatedBy:  actorID,
	})
}

// Interactions returns a customer's interaction history.
func (s *Service) Interactions(ctx context.Context, customerID string, limit int) ([]Interaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListInteractions(ctx, customerID, limit)
}

// DueFollowUps lists interactions whose follow up date has passed.
func (s *Service) DueFollowUps(ctx context.Context) ([]Interaction, error) {
	return s.repo.DueFollowUps(ctx, 200)
}

// ContactPhone returns the phone of an active customer, or "" when the
// customer has none.
func (s *Service) ContactPhone(ctx context.Context, id string) (string, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !c.IsActive || c.Phone == nil {
		return "", nil
	}
	return *c.Phone, nil
}

// normalizePhone keeps digits and a leading plus. Blank numbers become nil.
func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	var b strings.Builder
	for i, r := range strings.TrimSpace(*p) {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	out := b.String()
	return &out
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "customer", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("customers: activity log", slog.String("action", action), slog.Any("error", err))
	}
}
