package rbac

import "strings"

// RouteRule binds a navigation path prefix to the codes that unlock it.
type RouteRule struct {
	Prefix string
	Codes  []Permission
}

var routeRules = []RouteRule{
	{Prefix: "/dashboard/users", Codes: []Permission{PermUsersRead}},
	{Prefix: "/dashboard/parishes", Codes: []Permission{PermParishesRead}},
	{Prefix: "/dashboard/parishioners", Codes: []Permission{PermParishionersRead}},

	{Prefix: "/dashboard/finance", Codes: []Permission{PermTransactionsRead}},
	{Prefix: "/dashboard/finance/transactions", Codes: []Permission{PermTransactionsRead}},
	{Prefix: "/dashboard/finance/funds", Codes: []Permission{PermTransactionsRead}},
	{Prefix: "/dashboard/finance/categories", Codes: []Permission{PermTransactionsRead}},
	{Prefix: "/dashboard/finance/bank-accounts", Codes: []Permission{PermTransactionsRead}},
	{Prefix: "/dashboard/finance/entities", Codes: []Permission{PermTransactionsRead}},

	{Prefix: "/dashboard/hr", Codes: []Permission{PermPayrollsRead}},
	{Prefix: "/dashboard/hr/employees", Codes: []Permission{PermPayrollsRead}},
	{Prefix: "/dashboard/hr/payrolls", Codes: []Permission{PermPayrollsRead}},

	{Prefix: "/dashboard/assets", Codes: []Permission{PermAssetsRead}},
	{Prefix: "/dashboard/administration", Codes: []Permission{PermAssetsRead}},
	{Prefix: "/dashboard/administration/assets", Codes: []Permission{PermAssetsRead}},
	{Prefix: "/dashboard/administration/rental-contracts", Codes: []Permission{PermAssetsRead}},

	{Prefix: "/dashboard/audit-logs", Codes: []Permission{PermAuditLogsRead}},
	{Prefix: "/dashboard/system/audit-logs", Codes: []Permission{PermAuditLogsRead}},
	{Prefix: "/dashboard/system/users", Codes: []Permission{PermUsersRead}},
}

// RouteRules returns a copy of the route permission table.
func RouteRules() []RouteRule {
	out := make([]RouteRule, len(routeRules))
	for i, rule := range routeRules {
		codes := make([]Permission, len(rule.Codes))
		copy(codes, rule.Codes)
		out[i] = RouteRule{Prefix: rule.Prefix, Codes: codes}
	}
	return out
}

// RequiredPermissionsForRoute resolves the codes guarding path: an exact entry
// wins, otherwise the longest prefix p where path starts with p+"/". Unmapped
// paths need nothing.
func RequiredPermissionsForRoute(path string) []Permission {
	var best *RouteRule
	for i := range routeRules {
		rule := &routeRules[i]
		if rule.Prefix == path {
			best = rule
			break
		}
		if strings.HasPrefix(path, rule.Prefix+"/") {
			if best == nil || len(rule.Prefix) > len(best.Prefix) {
				best = rule
			}
		}
	}
	if best == nil {
		return nil
	}
	out := make([]Permission, len(best.Codes))
	copy(out, best.Codes)
	return out
}

// CanAccessRoute reports whether set unlocks path. Unrestricted paths are
// always accessible.
func CanAccessRoute(set PermissionSet, path string) bool {
	required := RequiredPermissionsForRoute(path)
	if len(required) == 0 {
		return true
	}
	return HasAny(set, required...)
}
