package authz

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"aedile.org/internal/ids"
)

// Service exposes the role catalog and its mutations. Catalog reads are
// served from an owned process-wide cache; every mutation invalidates the
// cache synchronously before returning, so a successful write is always
// visible to the next read.
type Service struct {
	store Store

	mu          sync.RWMutex
	roles       []Role
	permissions []CatalogPermission
	loaded      bool
}

// NewService constructs the role service over a Store.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	return &Service{store: store}, nil
}

// Roles returns all roles with resolved permission sets, cached.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, len(s.roles))
	copy(out, s.roles)
	return out, nil
}

// Permissions returns the full catalog, cached.
func (s *Service) Permissions(ctx context.Context) ([]CatalogPermission, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CatalogPermission, len(s.permissions))
	copy(out, s.permissions)
	return out, nil
}

// CreateRole persists a new role after checking that the actor holds
// roles:create:all. Unknown permission ids fail validation with the complete
// list of offenders; nothing is persisted in that case.
func (s *Service) CreateRole(ctx context.Context, actor Principal, name, description string, permissionIDs []string) (Role, error) {
	if !actor.Allowed(PermRolesCreateAll) {
		return Role{}, ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	permissionIDs = dedupeStrings(permissionIDs)
	if len(permissionIDs) == 0 {
		return Role{}, fmt.Errorf("%w: at least one permission is required", ErrInvalidInput)
	}

	catalog, err := s.Permissions(ctx)
	if err != nil {
		return Role{}, err
	}
	known := make(map[string]struct{}, len(catalog))
	for _, p := range catalog {
		known[p.ID] = struct{}{}
	}
	var unknown []string
	for _, id := range permissionIDs {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Role{}, &UnknownPermissionsError{IDs: unknown}
	}

	role := Role{
		ID:          ids.New(),
		Code:        roleCode(name),
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	created, err := s.store.CreateRole(ctx, role, permissionIDs)
	if err != nil {
		return Role{}, err
	}
	s.invalidate()
	return created, nil
}

// AssignRole links a role to a user. Idempotent: assigning an already-held
// role succeeds without effect.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// GrantsForUser resolves the user's granted permission triples through role
// membership. Not cached: user grants change independently of the catalog.
func (s *Service) GrantsForUser(ctx context.Context, userID string) ([]Permission, error) {
	perms, err := s.store.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		t := p.Triple()
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return err
	}
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = roles
	s.permissions = perms
	s.loaded = true
	return nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = nil
	s.permissions = nil
	s.loaded = false
}

var roleCodeStrip = regexp.MustCompile(`[^A-Z0-9]+`)

func roleCode(name string) string {
	code := roleCodeStrip.ReplaceAllString(strings.ToUpper(name), "_")
	return strings.Trim(code, "_")
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
