package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

// User represents an account as loaded for login, joined with its role and
// parish.
type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	FullName           string
	RoleID             uuid.UUID
	RoleName           string
	ParishID           *uuid.UUID
	ParishName         string
	IsActive           bool
	MustChangePassword bool
	LastLoginAt        *time.Time
}

// Principal snapshots the user's identity and the permissions of its role.
func (u *User) Principal() *rbac.Principal {
	role, ok := rbac.ParseRole(u.RoleName)
	if !ok {
		role = rbac.Role(u.RoleName)
	}
	var parish *rbac.ParishRef
	if u.ParishID != nil {
		parish = &rbac.ParishRef{ID: *u.ParishID, Name: u.ParishName}
	}
	return rbac.NewPrincipal(u.ID, u.Email, u.FullName, u.RoleID, role, rbac.PermissionsForRole(role), parish)
}
