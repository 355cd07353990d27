package roles

import (
	"context"

	"github.com/gpbmt-org/gpbmt/internal/platform/cache"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
}

// Descriptions are stored with each role by the seeder.
var Descriptions = map[rbac.Role]string{
	rbac.RoleSuperAdmin:      "Full access to every module",
	rbac.RoleDioceseManager:  "Diocese wide management of parishes, finance and assets",
	rbac.RoleParishPriest:    "Pastoral and financial work of one parish",
	rbac.RoleAccountant:      "Finance, payroll and asset bookkeeping",
	rbac.RoleParishSecretary: "Parishioner records and receipts of one parish",
}

// Service handles role business logic.
type Service struct {
	repo  RepositoryPort
	cache *cache.JSONCache
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, c *cache.JSONCache) *Service {
	return &Service{repo: repo, cache: c}
}

// ListRoles returns all stored roles with the permissions the registry grants
// them. Roles unknown to the registry get no permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var rows []Role
	err := s.cache.Fetch(ctx, &rows, func(ctx context.Context) (any, error) {
		return s.repo.ListRoles(ctx)
	}, "list")
	if err != nil {
		return nil, err
	}
	out := make([]Role, len(rows))
	for i, row := range rows {
		role, _ := rbac.ParseRole(row.Name)
		row.Permissions = rbac.PermissionsForRole(role).Strings()
		row.ParishScoped = role.ParishScoped()
		out[i] = row
	}
	return out, nil
}

// Catalog groups every permission code by resource, in catalog order.
func (s *Service) Catalog() []PermissionGroup {
	var groups []PermissionGroup
	index := map[string]int{}
	for _, code := range rbac.Catalog() {
		res := code.Resource()
		i, ok := index[res]
		if !ok {
			i = len(groups)
			index[res] = i
			groups = append(groups, PermissionGroup{Resource: res})
		}
		groups[i].Codes = append(groups[i].Codes, string(code))
	}
	return groups
}
