package rbac

// HasPermission reports whether set contains code.
func HasPermission(set PermissionSet, code Permission) bool {
	if len(set) == 0 {
		return false
	}
	return set.Has(code)
}

// HasAny reports whether set contains at least one of codes. An empty code
// list never matches.
func HasAny(set PermissionSet, codes ...Permission) bool {
	for _, c := range codes {
		if set.Has(c) {
			return true
		}
	}
	return false
}

// HasAll reports whether set contains every one of codes. An empty code list
// always matches, even against an empty set.
func HasAll(set PermissionSet, codes ...Permission) bool {
	for _, c := range codes {
		if !set.Has(c) {
			return false
		}
	}
	return true
}

// Mode selects how a Requirement combines its codes.
type Mode int

const (
	// ModeAny is satisfied by any one code (OR).
	ModeAny Mode = iota
	// ModeAll needs every code (AND).
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "any"
}

// Requirement is a set of codes plus the combination mode.
type Requirement struct {
	Codes []Permission
	Mode  Mode
}

// AnyOf builds an OR requirement.
func AnyOf(codes ...Permission) Requirement {
	return Requirement{Codes: codes, Mode: ModeAny}
}

// AllOf builds an AND requirement.
func AllOf(codes ...Permission) Requirement {
	return Requirement{Codes: codes, Mode: ModeAll}
}

// SatisfiedBy evaluates the requirement against set.
func (r Requirement) SatisfiedBy(set PermissionSet) bool {
	if r.Mode == ModeAll {
		return HasAll(set, r.Codes...)
	}
	return HasAny(set, r.Codes...)
}
