package httpapi

import (
	"net/http"
	"strings"

	"aedile.org/internal/authz"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/auth/login",
	"/auth/refresh",
	"/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates every non-public request from the access-token
// cookie or a bearer header. The token's permission codes are parsed into
// typed triples exactly once here; handlers only ever see the principal.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := accessTokenFromRequest(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		claims, err := a.sessions.VerifyAccessToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		grants, err := authz.ParseCodes(claims.Permissions)
		if err != nil {
			// A token with unparseable permission codes was not minted
			// by this service.
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		principal := authz.Principal{UserID: claims.Subject, Grants: grants}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithPrincipal(r.Context(), principal)))
	})
}

// requirePermission resolves the principal and checks one permission,
// writing the error response itself. Returns the principal and false when
// the request has been answered.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, check authz.Permission) (authz.Principal, bool) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return authz.Principal{}, false
	}
	if !principal.Allowed(check) {
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
		return authz.Principal{}, false
	}
	return principal, true
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
