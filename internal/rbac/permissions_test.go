package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

func TestSuperAdminHoldsEveryCatalogCode(t *testing.T) {
	set := rbac.PermissionsForRole(rbac.RoleSuperAdmin)
	require.Equal(t, len(rbac.Catalog()), set.Len())
	for _, code := range rbac.Catalog() {
		assert.True(t, rbac.HasPermission(set, code), "super admin missing %s", code)
	}
}

func TestCatalogCodesAreWellFormed(t *testing.T) {
	seen := map[rbac.Permission]bool{}
	for _, code := range rbac.Catalog() {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
		assert.NotEmpty(t, code.Resource())
		assert.Contains(t, string(code), ".")
		assert.True(t, rbac.IsKnownPermission(code))
	}
	assert.Len(t, seen, 20)
	assert.False(t, rbac.IsKnownPermission("permissions.view"))
}

func TestRolePermissionTable(t *testing.T) {
	cases := map[rbac.Role]struct {
		has     []rbac.Permission
		hasNot  []rbac.Permission
		setSize int
	}{
		rbac.RoleDioceseManager: {
			has:     []rbac.Permission{rbac.PermParishesWrite, rbac.PermTransactionsApprove, rbac.PermPayrollsApprove},
			hasNot:  []rbac.Permission{rbac.PermUsersRead, rbac.PermParishesDelete, rbac.PermAuditLogsRead},
			setSize: 11,
		},
		rbac.RoleParishPriest: {
			has:     []rbac.Permission{rbac.PermParishionersWrite, rbac.PermAssetsRead},
			hasNot:  []rbac.Permission{rbac.PermParishionersDelete, rbac.PermPayrollsRead},
			setSize: 6,
		},
		rbac.RoleAccountant: {
			has:     []rbac.Permission{rbac.PermPayrollsManage, rbac.PermAssetsWrite},
			hasNot:  []rbac.Permission{rbac.PermParishionersRead, rbac.PermTransactionsApprove},
			setSize: 7,
		},
		rbac.RoleParishSecretary: {
			has:     []rbac.Permission{rbac.PermParishionersRead, rbac.PermTransactionsCreate},
			hasNot:  []rbac.Permission{rbac.PermAssetsRead, rbac.PermUsersWrite},
			setSize: 5,
		},
	}
	for role, tc := range cases {
		t.Run(string(role), func(t *testing.T) {
			set := rbac.PermissionsForRole(role)
			assert.Equal(t, tc.setSize, set.Len())
			for _, code := range tc.has {
				assert.True(t, set.Has(code), "expected %s", code)
			}
			for _, code := range tc.hasNot {
				assert.False(t, set.Has(code), "unexpected %s", code)
			}
		})
	}
}

func TestUnknownRoleGetsEmptySet(t *testing.T) {
	set := rbac.PermissionsForRole("BISHOP")
	require.NotNil(t, set)
	assert.Zero(t, set.Len())
	assert.False(t, rbac.HasPermission(set, rbac.PermParishesRead))
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	set := rbac.PermissionsForRole(rbac.RoleParishSecretary)
	set[rbac.PermUsersDelete] = struct{}{}

	fresh := rbac.PermissionsForRole(rbac.RoleParishSecretary)
	assert.False(t, fresh.Has(rbac.PermUsersDelete))
}

func TestPermissionSetRoundTrip(t *testing.T) {
	for _, role := range rbac.Roles() {
		set := rbac.PermissionsForRole(role)
		again := rbac.PermissionSetFromStrings(set.Strings())
		assert.True(t, set.Equal(again), "round trip changed %s", role)
	}
}

func TestParishScopedRoles(t *testing.T) {
	scoped := map[rbac.Role]bool{
		rbac.RoleSuperAdmin:      false,
		rbac.RoleDioceseManager:  false,
		rbac.RoleParishPriest:    true,
		rbac.RoleAccountant:      false,
		rbac.RoleParishSecretary: true,
	}
	for role, want := range scoped {
		assert.Equal(t, want, role.ParishScoped(), string(role))
	}
}

func TestParseRole(t *testing.T) {
	role, ok := rbac.ParseRole(" parish_priest ")
	require.True(t, ok)
	assert.Equal(t, rbac.RoleParishPriest, role)

	_, ok = rbac.ParseRole("DEACON")
	assert.False(t, ok)
}
