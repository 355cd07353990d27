// Package rbac implements the role based authorization model: the permission
// registry, the evaluator, the request gate and parish scoping.
package rbac

import (
	"sort"
	"strings"
)

// Permission is a flat "resource.action" capability code.
type Permission string

// Permission catalog. Adding a code here grants it to SUPER_ADMIN automatically.
const (
	PermUsersRead   Permission = "users.read"
	PermUsersWrite  Permission = "users.write"
	PermUsersDelete Permission = "users.delete"

	PermParishesRead   Permission = "parishes.read"
	PermParishesWrite  Permission = "parishes.write"
	PermParishesDelete Permission = "parishes.delete"

	PermParishionersRead   Permission = "parishioners.read"
	PermParishionersWrite  Permission = "parishioners.write"
	PermParishionersDelete Permission = "parishioners.delete"

	PermTransactionsRead    Permission = "transactions.read"
	PermTransactionsCreate  Permission = "transactions.create"
	PermTransactionsApprove Permission = "transactions.approve"
	PermTransactionsDelete  Permission = "transactions.delete"

	PermPayrollsRead    Permission = "payrolls.read"
	PermPayrollsManage  Permission = "payrolls.manage"
	PermPayrollsApprove Permission = "payrolls.approve"

	PermAssetsRead   Permission = "assets.read"
	PermAssetsWrite  Permission = "assets.write"
	PermAssetsDelete Permission = "assets.delete"

	PermAuditLogsRead Permission = "audit-logs.read"
)

var catalog = []Permission{
	PermUsersRead, PermUsersWrite, PermUsersDelete,
	PermParishesRead, PermParishesWrite, PermParishesDelete,
	PermParishionersRead, PermParishionersWrite, PermParishionersDelete,
	PermTransactionsRead, PermTransactionsCreate, PermTransactionsApprove, PermTransactionsDelete,
	PermPayrollsRead, PermPayrollsManage, PermPayrollsApprove,
	PermAssetsRead, PermAssetsWrite, PermAssetsDelete,
	PermAuditLogsRead,
}

// Resource returns the part of the code before the dot.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ".")
	return resource
}

// Catalog returns every defined permission in declaration order.
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// IsKnownPermission reports whether code belongs to the catalog.
func IsKnownPermission(code Permission) bool {
	for _, p := range catalog {
		if p == code {
			return true
		}
	}
	return false
}

// Role names one of the fixed administrative roles.
type Role string

const (
	RoleSuperAdmin      Role = "SUPER_ADMIN"
	RoleDioceseManager  Role = "DIOCESE_MANAGER"
	RoleParishPriest    Role = "PARISH_PRIEST"
	RoleAccountant      Role = "ACCOUNTANT"
	RoleParishSecretary Role = "PARISH_SECRETARY"
)

var roles = []Role{
	RoleSuperAdmin,
	RoleDioceseManager,
	RoleParishPriest,
	RoleAccountant,
	RoleParishSecretary,
}

// Roles returns the closed set of roles in declaration order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// ParseRole maps a stored role name to a Role.
func ParseRole(name string) (Role, bool) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(name)))
	for _, r := range roles {
		if r == candidate {
			return r, true
		}
	}
	return "", false
}

// ParishScoped reports whether holders of the role only see their own parish.
func (r Role) ParishScoped() bool {
	return r == RoleParishPriest || r == RoleParishSecretary
}

// PermissionSet is an unordered set of permission codes.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from codes, ignoring duplicates.
func NewPermissionSet(codes ...Permission) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Has reports membership. A nil set holds nothing.
func (s PermissionSet) Has(code Permission) bool {
	_, ok := s[code]
	return ok
}

// Len returns the number of codes in the set.
func (s PermissionSet) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Equal reports set equality.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

// Codes returns the codes sorted lexically.
func (s PermissionSet) Codes() []Permission {
	out := make([]Permission, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings is Codes as plain strings, for serialization.
func (s PermissionSet) Strings() []string {
	codes := s.Codes()
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// PermissionSetFromStrings parses serialized codes. Unknown codes are kept so a
// snapshot survives catalog changes until the next login.
func PermissionSetFromStrings(codes []string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		set[Permission(c)] = struct{}{}
	}
	return set
}

var rolePermissions = map[Role]PermissionSet{
	RoleSuperAdmin: NewPermissionSet(catalog...),
	RoleDioceseManager: NewPermissionSet(
		PermParishesRead, PermParishesWrite,
		PermParishionersRead, PermParishionersWrite,
		PermTransactionsRead, PermTransactionsCreate, PermTransactionsApprove,
		PermPayrollsRead, PermPayrollsApprove,
		PermAssetsRead, PermAssetsWrite,
	),
	RoleParishPriest: NewPermissionSet(
		PermParishesRead,
		PermParishionersRead, PermParishionersWrite,
		PermTransactionsRead, PermTransactionsCreate,
		PermAssetsRead,
	),
	RoleAccountant: NewPermissionSet(
		PermParishesRead,
		PermTransactionsRead, PermTransactionsCreate,
		PermPayrollsRead, PermPayrollsManage,
		PermAssetsRead, PermAssetsWrite,
	),
	RoleParishSecretary: NewPermissionSet(
		PermParishesRead,
		PermParishionersRead, PermParishionersWrite,
		PermTransactionsRead, PermTransactionsCreate,
	),
}

// PermissionsForRole returns a copy of the role's permission set. Unknown roles
// get an empty set.
func PermissionsForRole(role Role) PermissionSet {
	set, ok := rolePermissions[role]
	if !ok {
		return PermissionSet{}
	}
	return set.Clone()
}
