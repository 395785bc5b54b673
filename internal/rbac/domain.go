// Package rbac maps roles to permissions and guards routes by permission.
package rbac

import (
	"sort"
	"strings"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// Role is a fixed permission grouping assigned to a user.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RolePharmacist Role = "PHARMACIST"
	RoleCashier    Role = "CASHIER"
)

var rolePermissions = map[Role][]string{
	RoleAdmin: shared.AllScopes(),
	RoleManager: {
		shared.PermMedicinesView, shared.PermMedicinesEdit, shared.PermMedicinesAdjust, shared.PermMedicinesDelete,
		shared.PermSalesView, shared.PermSalesCreate, shared.PermSalesEdit, shared.PermSalesDelete,
		shared.PermReturnsCreate, shared.PermReturnsDelete,
		shared.PermPartiesView, shared.PermPartiesEdit,
		shared.PermCreditsView, shared.PermCreditsEdit, shared.PermCreditsOverride, shared.PermCreditsDelete,
		shared.PermReportsView, shared.PermAuditView,
		shared.PermExpensesView, shared.PermExpensesEdit,
	},
	RolePharmacist: {
		shared.PermMedicinesView, shared.PermMedicinesEdit,
		shared.PermSalesView, shared.PermSalesCreate, shared.PermSalesEdit,
		shared.PermReturnsCreate,
		shared.PermPartiesView, shared.PermPartiesEdit,
		shared.PermCreditsView, shared.PermCreditsEdit,
		shared.PermReportsView,
	},
	RoleCashier: {
		shared.PermMedicinesView,
		shared.PermSalesView, shared.PermSalesCreate,
		shared.PermPartiesView,
		shared.PermCreditsView,
	},
}

// ParseRole normalises a role name.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := rolePermissions[role]
	return role, ok
}

// Roles lists every known role in name order.
func Roles() []Role {
	out := make([]Role, 0, len(rolePermissions))
	for r := range rolePermissions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermissionsFor returns a copy of the role's permission set.
func PermissionsFor(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
