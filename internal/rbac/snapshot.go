package rbac

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Snapshot is the serialized form of a Principal kept in sessions and tokens.
type Snapshot struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	RoleID      string   `json:"roleId"`
	RoleName    string   `json:"roleName"`
	Permissions []string `json:"permissions"`
	ParishID    string   `json:"parishId,omitempty"`
	ParishName  string   `json:"parishName,omitempty"`
}

// ErrInvalidSnapshot is returned for snapshots that cannot form a principal.
var ErrInvalidSnapshot = errors.New("rbac: invalid principal snapshot")

// Snapshot serializes the principal.
func (p *Principal) Snapshot() Snapshot {
	snap := Snapshot{
		ID:          p.ID.String(),
		Email:       p.Email,
		Name:        p.Name,
		RoleID:      p.RoleID.String(),
		RoleName:    string(p.Role),
		Permissions: p.Permissions.Strings(),
	}
	if p.Parish != nil {
		snap.ParishID = p.Parish.ID.String()
		snap.ParishName = p.Parish.Name
	}
	return snap
}

// Principal rebuilds the principal. The permission list is taken as stored,
// not recomputed from the role.
func (s Snapshot) Principal() (*Principal, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidSnapshot, err)
	}
	var roleID uuid.UUID
	if s.RoleID != "" {
		if roleID, err = uuid.Parse(s.RoleID); err != nil {
			return nil, fmt.Errorf("%w: role id: %v", ErrInvalidSnapshot, err)
		}
	}
	// Unknown role names are kept verbatim; they carry no parish scoping.
	role := Role(s.RoleName)
	if parsed, ok := ParseRole(s.RoleName); ok {
		role = parsed
	}
	var parish *ParishRef
	if s.ParishID != "" {
		parishID, err := uuid.Parse(s.ParishID)
		if err != nil {
			return nil, fmt.Errorf("%w: parish id: %v", ErrInvalidSnapshot, err)
		}
		parish = &ParishRef{ID: parishID, Name: s.ParishName}
	}
	return NewPrincipal(id, s.Email, s.Name, roleID, role, PermissionSetFromStrings(s.Permissions), parish), nil
}
