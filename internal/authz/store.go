package authz

import (
	"context"
	"time"
)

// Role groups catalog permissions; roles are assigned to users many-to-many.
type Role struct {
	ID          string               `json:"id"`
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Permissions []CatalogPermission  `json:"permissions"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// CatalogPermission is a stored catalog entry with its storage identity.
type CatalogPermission struct {
	ID          string    `json:"id"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Scope       Scope     `json:"scope,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Triple returns the typed permission for engine evaluation.
func (p CatalogPermission) Triple() Permission {
	return Permission{Resource: p.Resource, Action: p.Action, Scope: p.Scope}
}

// Store describes the persistence operations the role service requires.
type Store interface {
	// ListRoles returns every role with its permission set resolved.
	ListRoles(ctx context.Context) ([]Role, error)
	// ListPermissions returns the full catalog.
	ListPermissions(ctx context.Context) ([]CatalogPermission, error)
	// CreateRole persists the role and its permission links in one
	// transaction; a role without its permissions must never be observable.
	CreateRole(ctx context.Context, role Role, permissionIDs []string) (Role, error)
	// AssignRole links a role to a user; re-assigning an already-held role
	// is a no-op success.
	AssignRole(ctx context.Context, userID, roleID string) error
	// PermissionsForUser resolves the union of catalog permissions granted
	// through the user's roles.
	PermissionsForUser(ctx context.Context, userID string) ([]CatalogPermission, error)
}
