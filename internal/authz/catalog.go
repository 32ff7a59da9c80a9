package authz

// Resources and actions known to the permission catalog. The catalog is the
// closed set of grantable triples; anything outside it is rejected at role
// creation time.
const (
	ResourceBuildings  = "buildings"
	ResourceApartments = "apartments"
	ResourceReadings   = "readings"
	ResourceUsers      = "users"
	ResourceRoles      = "roles"
	ResourceReports    = "reports"

	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
)

// PermRolesCreateAll guards role creation; held only by administrators.
var PermRolesCreateAll = Permission{Resource: ResourceRoles, Action: ActionCreate, Scope: ScopeAll}

// PermUsersUpdateAll guards role assignment to users.
var PermUsersUpdateAll = Permission{Resource: ResourceUsers, Action: ActionUpdate, Scope: ScopeAll}

// PermRolesReadAll guards catalog reads.
var PermRolesReadAll = Permission{Resource: ResourceRoles, Action: ActionRead, Scope: ScopeAll}

// CatalogEntry is a grantable permission with its human description, seeded
// into storage at migration time.
type CatalogEntry struct {
	Permission
	Description string
}

// BuiltinCatalog enumerates every valid triple for the property domain.
var BuiltinCatalog = buildCatalog()

func buildCatalog() []CatalogEntry {
	scoped := func(resource, action, description string, scopes ...Scope) []CatalogEntry {
		entries := make([]CatalogEntry, 0, len(scopes))
		for _, scope := range scopes {
			entries = append(entries, CatalogEntry{
				Permission:  Permission{Resource: resource, Action: action, Scope: scope},
				Description: description,
			})
		}
		return entries
	}

	var out []CatalogEntry
	out = append(out, scoped(ResourceBuildings, ActionCreate, "Create buildings", ScopeAll)...)
	out = append(out, scoped(ResourceBuildings, ActionRead, "View buildings", ScopeAll, ScopeBuilding, ScopeOwn)...)
	out = append(out, scoped(ResourceBuildings, ActionUpdate, "Edit buildings", ScopeAll, ScopeBuilding)...)
	out = append(out, scoped(ResourceBuildings, ActionDelete, "Delete buildings", ScopeAll)...)

	out = append(out, scoped(ResourceApartments, ActionCreate, "Create apartments", ScopeAll, ScopeBuilding)...)
	out = append(out, scoped(ResourceApartments, ActionRead, "View apartments", ScopeAll, ScopeBuilding, ScopeOwn)...)
	out = append(out, scoped(ResourceApartments, ActionUpdate, "Edit apartments", ScopeAll, ScopeBuilding, ScopeOwn)...)
	out = append(out, scoped(ResourceApartments, ActionDelete, "Delete apartments", ScopeAll)...)

	out = append(out, scoped(ResourceReadings, ActionCreate, "Submit water-meter readings", ScopeAll, ScopeBuilding, ScopeOwn)...)
	out = append(out, scoped(ResourceReadings, ActionRead, "View water-meter readings", ScopeAll, ScopeBuilding, ScopeOwn)...)
	out = append(out, scoped(ResourceReadings, ActionUpdate, "Correct water-meter readings", ScopeAll, ScopeBuilding)...)
	out = append(out, scoped(ResourceReadings, ActionDelete, "Delete water-meter readings", ScopeAll)...)

	out = append(out, scoped(ResourceUsers, ActionCreate, "Create user accounts", ScopeAll)...)
	out = append(out, scoped(ResourceUsers, ActionRead, "View user accounts", ScopeAll, ScopeBuilding, ScopeOwn)...)
	out = append(out, scoped(ResourceUsers, ActionUpdate, "Edit user accounts", ScopeAll, ScopeOwn)...)
	out = append(out, scoped(ResourceUsers, ActionDelete, "Delete user accounts", ScopeAll)...)

	out = append(out, scoped(ResourceRoles, ActionCreate, "Create roles", ScopeAll)...)
	out = append(out, scoped(ResourceRoles, ActionRead, "View roles and permissions", ScopeAll)...)
	out = append(out, scoped(ResourceRoles, ActionUpdate, "Edit roles", ScopeAll)...)
	out = append(out, scoped(ResourceRoles, ActionDelete, "Delete roles", ScopeAll)...)

	out = append(out, scoped(ResourceReports, ActionRead, "View consumption reports", ScopeAll, ScopeBuilding)...)
	// Export is deliberately unscoped: either an account may export or it may not.
	out = append(out, CatalogEntry{
		Permission:  Permission{Resource: ResourceReports, Action: ActionExport},
		Description: "Export consumption reports",
	})
	return out
}
