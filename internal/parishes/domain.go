package parishes

import (
	"time"

	"github.com/google/uuid"
)

// Parish is a parish of the diocese.
type Parish struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Phone        string     `json:"phone"`
	Email        string     `json:"email"`
	PriestName   string     `json:"priestName"`
	FoundingDate *time.Time `json:"foundingDate"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ListFilters narrows parish listings.
type ListFilters struct {
	Search   string
	IsActive *bool
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Address      string `json:"address" validate:"max=255"`
	Phone        string `json:"phone" validate:"omitempty,max=20,phone"`
	Email        string `json:"email" validate:"omitempty,email,max=100"`
	PriestName   string `json:"priestName" validate:"max=100"`
	FoundingDate string `json:"foundingDate" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateInput is the body of a partial update.
type UpdateInput struct {
	Name         *string `json:"name" validate:"omitempty,min=2,max=100"`
	Address      *string `json:"address" validate:"omitempty,max=255"`
	Phone        *string `json:"phone" validate:"omitempty,max=20,phone"`
	Email        *string `json:"email" validate:"omitempty,email,max=100"`
	PriestName   *string `json:"priestName" validate:"omitempty,max=100"`
	FoundingDate *string `json:"foundingDate" validate:"omitempty,datetime=2006-01-02"`
	IsActive     *bool   `json:"isActive"`
}

// Changes carries the columns of an update; nil fields are kept.
type Changes struct {
	Name            *string
	Address         *string
	Phone           *string
	Email           *string
	PriestName      *string
	SetFoundingDate bool
	FoundingDate    *time.Time
	IsActive        *bool
}
