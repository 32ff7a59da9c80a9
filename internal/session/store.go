package session

import (
	"context"
	"errors"

	"aedile.org/internal/authz"
)

var (
	// ErrInvalidCredentials is the uniform login failure: unknown account,
	// disabled account and wrong password are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrTokenInvalid is the uniform refresh/verify failure: never issued,
	// expired, already rotated and revoked all collapse into it.
	ErrTokenInvalid = errors.New("session: invalid token")

	// ErrUserNotFound is returned by credential lookups; the manager folds
	// it into ErrInvalidCredentials so storage errors stay distinguishable.
	ErrUserNotFound = errors.New("session: user not found")
)

// Store persists sessions. Rotate is the single concurrency-sensitive
// operation: the active→rotated transition must be a compare-and-swap so
// that of two racing refreshes exactly one wins.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Rotate atomically marks parent rotated (only if still active) and
	// persists child as the sole successor. Returns ErrTokenInvalid when
	// the parent already left the active state.
	Rotate(ctx context.Context, parentID string, child *Session) error
	// Revoke marks the session revoked if it is still active; revoking a
	// terminal session is a no-op.
	Revoke(ctx context.Context, id string) error
}

// UserCredential is the authentication view of an account. Business profile
// fields live elsewhere.
type UserCredential struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Active       bool   `json:"active"`
	Verified     bool   `json:"verified"`
}

// CredentialStore looks up accounts for password verification.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*UserCredential, error)
}

// GrantSource resolves the permissions snapshotted into each access token.
type GrantSource interface {
	GrantsForUser(ctx context.Context, userID string) ([]authz.Permission, error)
}
