package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Ref is an {id, name} pair of a related record.
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// User represents a user account for management. The password hash never
// leaves the repository.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	Role               Ref        `json:"role"`
	Parish             *Ref       `json:"parish"`
	IsActive           bool       `json:"isActive"`
	MustChangePassword bool       `json:"mustChangePassword"`
	LastLoginAt        *time.Time `json:"lastLoginAt"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// ParishID returns the assigned parish, if any.
func (u User) ParishID() *uuid.UUID {
	if u.Parish == nil {
		return nil
	}
	id := u.Parish.ID
	return &id
}

// ListFilters narrows user listings.
type ListFilters struct {
	Search   string
	RoleID   *uuid.UUID
	ParishID *uuid.UUID
	IsActive *bool
	Page     int
	Limit    int
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=6,max=100"`
	Name     string  `json:"name" validate:"required,min=2,max=100"`
	Phone    string  `json:"phone" validate:"omitempty,max=20,phone"`
	RoleID   string  `json:"roleId" validate:"required,uuid"`
	ParishID *string `json:"parishId" validate:"omitempty,uuid"`
}

// UpdateInput is the body of a partial update. Absent fields are kept.
type UpdateInput struct {
	Email    *string             `json:"email" validate:"omitempty,email,max=255"`
	Name     *string             `json:"name" validate:"omitempty,min=2,max=100"`
	Phone    *string             `json:"phone" validate:"omitempty,max=20,phone"`
	RoleID   *string             `json:"roleId" validate:"omitempty,uuid"`
	ParishID shared.NullableUUID `json:"parishId" validate:"-"`
	IsActive *bool               `json:"isActive"`
}

// ResetPasswordInput optionally carries the new password.
type ResetPasswordInput struct {
	NewPassword string `json:"newPassword" validate:"omitempty,min=6,max=100"`
}

// ChangeRoleInput is the body of a role change.
type ChangeRoleInput struct {
	RoleID string `json:"roleId" validate:"required,uuid"`
}

// ResetPasswordResult is returned once; the password is not stored in clear.
type ResetPasswordResult struct {
	UserID             uuid.UUID `json:"userId"`
	TemporaryPassword  string    `json:"temporaryPassword"`
	MustChangePassword bool      `json:"mustChangePassword"`
}

// NewUser carries the columns of an insert.
type NewUser struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	Phone        string
	RoleID       uuid.UUID
	ParishID     *uuid.UUID
}

// Changes carries the columns of an update; nil fields are kept.
type Changes struct {
	Email     *string
	Name      *string
	Phone     *string
	RoleID    *uuid.UUID
	SetParish bool
	ParishID  *uuid.UUID
	IsActive  *bool
}
