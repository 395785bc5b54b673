package shared

// Permission names checked by rbac middleware and services.
const (
	PermUsersManage = "users.manage"

	PermMedicinesView   = "medicines.view"
	PermMedicinesEdit   = "medicines.edit"
	PermMedicinesAdjust = "medicines.adjust"
	PermMedicinesDelete = "medicines.delete"

	PermSalesView   = "sales.view"
	PermSalesCreate = "sales.create"
	PermSalesEdit   = "sales.edit"
	PermSalesDelete = "sales.delete"

	PermReturnsCreate = "returns.create"
	PermReturnsDelete = "returns.delete"

	PermPartiesView = "parties.view"
	PermPartiesEdit = "parties.edit"

	PermCreditsView     = "credits.view"
	PermCreditsEdit     = "credits.edit"
	PermCreditsOverride = "credits.override"
	PermCreditsDelete   = "credits.delete"

	PermReportsView = "reports.view"

	PermAuditView = "audit.view"

	PermExpensesView = "expenses.view"
	PermExpensesEdit = "expenses.edit"
)

// AllScopes lists every permission known to the system.
func AllScopes() []string {
	return []string{
		PermUsersManage,
		PermMedicinesView,
		PermMedicinesEdit,
		PermMedicinesAdjust,
		PermMedicinesDelete,
		PermSalesView,
		PermSalesCreate,
		PermSalesEdit,
		PermSalesDelete,
		PermReturnsCreate,
		PermReturnsDelete,
		PermPartiesView,
		PermPartiesEdit,
		PermCreditsView,
		PermCreditsEdit,
		PermCreditsOverride,
		PermCreditsDelete,
		PermReportsView,
		PermAuditView,
		PermExpensesView,
		PermExpensesEdit,
	}
}
