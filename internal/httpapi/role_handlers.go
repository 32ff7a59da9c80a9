package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"aedile.org/internal/audit"
	"aedile.org/internal/authz"
	"aedile.org/internal/session"
)

type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listRoles(w, r)
	case http.MethodPost:
		a.createRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePermission(w, r, authz.PermRolesReadAll); !ok {
		return
	}
	roles, err := a.roles.Roles(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	role, err := a.roles.CreateRole(r.Context(), principal, req.Name, req.Description, req.PermissionIDs)
	if err != nil {
		a.handleAuthzError(w, r, err)
		return
	}

	a.audit.Record(r.Context(), audit.Event{
		Type:      audit.EventRoleCreated,
		UserID:    principal.UserID,
		IP:        session.FingerprintFromRequest(r).IPAddress,
		UserAgent: r.UserAgent(),
		Metadata:  map[string]string{"role_id": role.ID, "role_code": role.Code},
	})
	writeJSON(w, http.StatusCreated, map[string]any{"role": role})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requirePermission(w, r, authz.PermRolesReadAll); !ok {
		return
	}
	perms, err := a.roles.Permissions(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// handleUserRoles serves POST /v1/users/{id}/roles.
func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := userRolesPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requirePermission(w, r, authz.PermUsersUpdateAll)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := a.roles.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		a.handleAuthzError(w, r, err)
		return
	}

	a.audit.Record(r.Context(), audit.Event{
		Type:      audit.EventRoleAssigned,
		UserID:    principal.UserID,
		IP:        session.FingerprintFromRequest(r).IPAddress,
		UserAgent: r.UserAgent(),
		Metadata:  map[string]string{"target_user_id": userID, "role_id": req.RoleID},
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "role assigned"})
}

func (a *API) handleAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	var unknown *authz.UnknownPermissionsError
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
	case errors.As(err, &unknown):
		writeError(w, r, http.StatusBadRequest, "unknown_permissions",
			"unknown permission ids: "+strings.Join(unknown.IDs, ", "))
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func userRolesPath(path string) (userID string, ok bool) {
	rest, found := strings.CutPrefix(path, "/v1/users/")
	if !found {
		return "", false
	}
	userID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "roles" || userID == "" {
		return "", false
	}
	return userID, true
}
