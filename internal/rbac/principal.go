package rbac

import (
	"context"

	"github.com/google/uuid"
)

// ParishRef identifies the parish a principal is assigned to.
type ParishRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ParishAssignment describes how a principal relates to parish scoping.
type ParishAssignment int

const (
	// AssignmentNotRequired applies to roles that see every parish.
	AssignmentNotRequired ParishAssignment = iota
	// AssignmentAssigned is a parish scoped role with a parish.
	AssignmentAssigned
	// AssignmentMissing is a parish scoped role without a parish. Such accounts
	// are denied by parish scoped operations.
	AssignmentMissing
)

func (a ParishAssignment) String() string {
	switch a {
	case AssignmentAssigned:
		return "assigned"
	case AssignmentMissing:
		return "missing"
	default:
		return "not_required"
	}
}

// Principal is the authenticated actor of a request. Permissions is the
// snapshot taken at login; role changes apply after the next login.
type Principal struct {
	ID          uuid.UUID
	Email       string
	Name        string
	RoleID      uuid.UUID
	Role        Role
	Permissions PermissionSet
	Parish      *ParishRef
}

// NewPrincipal builds a principal with a private copy of perms.
func NewPrincipal(id uuid.UUID, email, name string, roleID uuid.UUID, role Role, perms PermissionSet, parish *ParishRef) *Principal {
	var ref *ParishRef
	if parish != nil {
		copied := *parish
		ref = &copied
	}
	return &Principal{
		ID:          id,
		Email:       email,
		Name:        name,
		RoleID:      roleID,
		Role:        role,
		Permissions: perms.Clone(),
		Parish:      ref,
	}
}

// Assignment reports the parish scoping state.
func (p *Principal) Assignment() ParishAssignment {
	if p == nil || !p.Role.ParishScoped() {
		return AssignmentNotRequired
	}
	if p.Parish == nil || p.Parish.ID == uuid.Nil {
		return AssignmentMissing
	}
	return AssignmentAssigned
}

// ParishID returns the assigned parish, if any.
func (p *Principal) ParishID() (uuid.UUID, bool) {
	if p == nil || p.Parish == nil || p.Parish.ID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.Parish.ID, true
}

// Can is shorthand for HasPermission on the snapshot.
func (p *Principal) Can(code Permission) bool {
	if p == nil {
		return false
	}
	return HasPermission(p.Permissions, code)
}

// CanManageResource allows owners to act on their own records and everyone
// else only with the admin permission.
func CanManageResource(p *Principal, ownerID uuid.UUID, admin Permission) bool {
	if p == nil {
		return false
	}
	if p.ID == ownerID {
		return true
	}
	return p.Can(admin)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal set by the gate, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
