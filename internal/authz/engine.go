package authz

// HasPermission reports whether any single grant satisfies the check.
//
// A grant g satisfies check c when resource and action match exactly and
// either both are unscoped, or both carry a ranked scope with the grant at
// least as broad as the check. An unscoped grant never satisfies a scoped
// check and vice versa; unknown scope values never match anything.
func HasPermission(granted []Permission, check Permission) bool {
	for _, g := range granted {
		if satisfies(g, check) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of the checks passes on its
// own. Checks are never combined: each is evaluated independently against
// the full grant set.
func HasAnyPermission(granted []Permission, checks ...Permission) bool {
	for _, check := range checks {
		if HasPermission(granted, check) {
			return true
		}
	}
	return false
}

func satisfies(g, check Permission) bool {
	if g.Resource != check.Resource || g.Action != check.Action {
		return false
	}
	if check.Scope == ScopeNone {
		return g.Scope == ScopeNone
	}
	grantRank, ok := g.Scope.Rank()
	if !ok {
		return false
	}
	checkRank, ok := check.Scope.Rank()
	if !ok {
		return false
	}
	return grantRank <= checkRank
}
