package users

import "time"

// User represents a user account for management.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	RoleIDs     []string  `json:"role_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilters narrows user listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}

// CreateInput carries a new account.
type CreateInput struct {
	Email    string   `json:"email" validate:"required,email"`
	Name     string   `json:"name" validate:"required,max=120"`
	Phone    string   `json:"phone" validate:"omitempty,max=20"`
	Password string   `json:"password" validate:"required,min=8"`
	RoleIDs  []string `json:"role_ids"`
}

// UpdateInput is a partial update.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,max=120"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	IsActive *bool   `json:"is_active"`
}
