package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"aedile.org/internal/session"
)

const (
	accessCookieName  = "aedile_access"
	refreshCookieName = "aedile_refresh"
	// The refresh cookie only ever needs to reach /auth/refresh and
	// /auth/logout; path-scoping keeps it off every other request.
	refreshCookiePath = "/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
	Verified bool   `json:"verified"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	fp := session.FingerprintFromRequest(r)
	res, err := a.sessions.Login(r.Context(), req.Email, req.Password, fp)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			// One envelope for every failure mode; the audit log has
			// the detail.
			writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	a.setSessionCookies(w, res.Tokens)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"user": userResponse{
			ID:       res.User.ID,
			Email:    res.User.Email,
			Active:   res.User.Active,
			Verified: res.User.Verified,
		},
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "refresh token missing or invalid")
		return
	}

	fp := session.FingerprintFromRequest(r)
	pair, err := a.sessions.Refresh(r.Context(), cookie.Value, fp)
	if err != nil {
		if errors.Is(err, session.ErrTokenInvalid) {
			a.clearSessionCookies(w)
			writeError(w, r, http.StatusUnauthorized, "invalid_token", "refresh token missing or invalid")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	a.setSessionCookies(w, *pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "token refreshed",
		"access_token": pair.AccessToken,
		"expires_at":   pair.AccessExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := a.sessions.Logout(r.Context(), cookie.Value, session.FingerprintFromRequest(r)); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
			return
		}
	}
	// Logout succeeds no matter what state the session was in.
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "logged out",
	})
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair session.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   a.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   a.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
