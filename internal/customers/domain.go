package customers

import (
	"fmt"
	"time"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// Customer is a retail customer.
type Customer struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Phone       *string    `json:"phone,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Address     *string    `json:"address,omitempty"`
	City        *string    `json:"city,omitempty"`
	TaxID       *string    `json:"tax_id,omitempty"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	Anniversary *time.Time `json:"anniversary,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// InteractionType classifies customer interactions.
type InteractionType string

const (
	InteractionCall     InteractionType = "call"
	InteractionVisit    InteractionType = "visit"
	InteractionWhatsApp InteractionType = "whatsapp"
	InteractionNote     InteractionType = "note"
)

// Interaction is a logged contact with a customer.
type Interaction struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Type       InteractionType `json:"type"`
	Summary    string          `json:"summary"`
	FollowUpAt *time.Time      `json:"follow_up_at,omitempty"`
	CreatedBy  string          `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateCustomerRequest creates a customer.
type CreateCustomerRequest struct {
	Code        string     `json:"code" validate:"omitempty,max=50"`
	Name        string     `json:"name" validate:"required,max=200"`
	Phone       *string    `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email       *string    `json:"email,omitempty" validate:"omitempty,email"`
	Address     *string    `json:"address,omitempty" validate:"omitempty,max=300"`
	City        *string    `json:"city,omitempty" validate:"omitempty,max=100"`
	TaxID       *string    `json:"tax_id,omitempty" validate:"omitempty,max=50"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	Anniversary *time.Time `json:"anniversary,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// UpdateCustomerRequest is a partial update.
type UpdateCustomerRequest struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone       *string    `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email       *string    `json:"email,omitempty" validate:"omitempty,email"`
	Address     *string    `json:"address,omitempty" validate:"omitempty,max=300"`
	City        *string    `json:"city,omitempty" validate:"omitempty,max=100"`
	TaxID       *string    `json:"tax_id,omitempty"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	Anniversary *time.Time `json:"anniversary,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// ListCustomersRequest filters customer listings.
type ListCustomersRequest struct {
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// InteractionRequest logs an interaction.
type InteractionRequest struct {
	Type       InteractionType `json:"type" validate:"required,oneof=call visit whatsapp note"`
	Summary    string          `json:"summary" validate:"required,max=2000"`
	FollowUpAt *time.Time      `json:"follow_up_at,omitempty"`
}

var (
	ErrNotFound      = fmt.Errorf("customers: %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("customers: code or phone already exists: %w", httpx.ErrDuplicate)
	ErrInvalidInput  = fmt.Errorf("customers: %w", httpx.ErrValidation)
)
