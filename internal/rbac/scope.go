package rbac

import "github.com/google/uuid"

// ParishScope is the parish restriction derived from a principal.
type ParishScope struct {
	restricted bool
	parishID   uuid.UUID
}

// ScopeFor derives the scope of p. Parish scoped roles are restricted to
// their parish. A nil principal or a scoped role without a parish gets a
// restricted scope that matches no parish.
func ScopeFor(p *Principal) ParishScope {
	if p == nil {
		return ParishScope{restricted: true}
	}
	switch p.Assignment() {
	case AssignmentAssigned:
		id, _ := p.ParishID()
		return ParishScope{restricted: true, parishID: id}
	case AssignmentMissing:
		return ParishScope{restricted: true}
	default:
		return ParishScope{}
	}
}

// Restricted reports whether queries must be confined to one parish.
func (s ParishScope) Restricted() bool {
	return s.restricted
}

// ParishID is the enforced parish when Restricted. uuid.Nil when the scope
// matches nothing.
func (s ParishScope) ParishID() uuid.UUID {
	return s.parishID
}

// Empty reports whether the scope matches no parish at all.
func (s ParishScope) Empty() bool {
	return s.restricted && s.parishID == uuid.Nil
}

// Filter returns the effective parish filter: the principal's own parish when
// restricted, otherwise requested (nil means no restriction).
func (s ParishScope) Filter(requested *uuid.UUID) *uuid.UUID {
	if s.restricted {
		id := s.parishID
		return &id
	}
	if requested == nil {
		return nil
	}
	id := *requested
	return &id
}

// Allows reports whether a record of parishID is visible under the scope.
func (s ParishScope) Allows(parishID uuid.UUID) bool {
	if !s.restricted {
		return true
	}
	return !s.Empty() && s.parishID == parishID
}

// IsAllowedParish reports whether p may address requested. Non scoped
// principals may address any parish.
func IsAllowedParish(p *Principal, requested uuid.UUID) bool {
	if p == nil {
		return false
	}
	if !p.Role.ParishScoped() {
		return true
	}
	own, ok := p.ParishID()
	return ok && own == requested
}

// EffectiveParish resolves the parish filter for a listing or create request.
// A scoped principal naming another parish is denied, and one without a
// parish is denied outright.
func EffectiveParish(p *Principal, requested *uuid.UUID) (*uuid.UUID, *Denial) {
	if p == nil {
		return nil, Unauthenticated()
	}
	if p.Assignment() == AssignmentMissing {
		return nil, UnassignedParish()
	}
	if requested != nil && !IsAllowedParish(p, *requested) {
		return nil, ParishMismatch()
	}
	return ScopeFor(p).Filter(requested), nil
}
