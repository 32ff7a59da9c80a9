package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"aedile.org/internal/audit"
	"aedile.org/internal/authz"
	"aedile.org/internal/ids"
	"aedile.org/internal/obs"
)

const (
	defaultIssuer     = "aedile"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Manager owns the login/refresh/logout lifecycle: it issues access and
// refresh tokens, enforces single-use rotation and records every
// security-relevant transition in the audit log.
type Manager struct {
	sessions    Store
	credentials CredentialStore
	grants      GrantSource
	recorder    *audit.Recorder

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token and session lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. The signing secret is mandatory; the
// recorder may be nil, in which case audit events go to the shared logger.
func NewManager(sessions Store, credentials CredentialStore, grants GrantSource, recorder *audit.Recorder, secret []byte, opts ...Option) (*Manager, error) {
	if sessions == nil || credentials == nil || grants == nil {
		return nil, errors.New("session: sessions, credentials and grants are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("session: signing secret is required")
	}
	m := &Manager{
		sessions:    sessions,
		credentials: credentials,
		grants:      grants,
		recorder:    recorder,
		secret:      secret,
		issuer:      defaultIssuer,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TokenPair carries the issued credentials and their expirations.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is the successful outcome of Login.
type LoginResult struct {
	Tokens TokenPair
	User   UserCredential
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Login verifies credentials and opens a new session. Every failure mode —
// unknown account, disabled or unverified account, wrong password — returns
// the same ErrInvalidCredentials so responses cannot be used to enumerate
// accounts; the audit event carries the precise reason instead.
func (m *Manager) Login(ctx context.Context, email, password string, fp Fingerprint) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		m.auditLoginFailed(ctx, email, fp, "missing_credentials")
		return nil, ErrInvalidCredentials
	}

	user, err := m.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.auditLoginFailed(ctx, email, fp, "unknown_account")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		m.auditLoginFailed(ctx, email, fp, "account_disabled")
		return nil, ErrInvalidCredentials
	}
	if !user.Verified {
		m.auditLoginFailed(ctx, email, fp, "account_unverified")
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		m.auditLoginFailed(ctx, email, fp, "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	pair, sess, err := m.openSession(ctx, user.ID, fp)
	if err != nil {
		return nil, err
	}

	obs.CountLogin("success")
	m.record(ctx, audit.Event{
		Type:      audit.EventLoginSuccess,
		UserID:    user.ID,
		Email:     user.Email,
		IP:        fp.IPAddress,
		UserAgent: fp.UserAgent,
		Metadata:  map[string]string{"session_id": sess.ID},
	})
	return &LoginResult{Tokens: pair, User: *user}, nil
}

// Refresh rotates the presented refresh token. The active→rotated transition
// is a compare-and-swap in the store, so of two concurrent calls with the
// same token exactly one succeeds; the loser gets ErrTokenInvalid. A
// fingerprint that drifted since login does not reject the refresh but is
// recorded in the audit event for downstream anomaly detection.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, fp Fingerprint) (*TokenPair, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		m.auditTokenInvalid(ctx, "", fp, "malformed_token")
		return nil, ErrTokenInvalid
	}

	parent, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			m.auditTokenInvalid(ctx, "", fp, "unknown_session")
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if parent.State != StateActive {
		m.auditTokenInvalid(ctx, parent.UserID, fp, "session_"+string(parent.State))
		return nil, ErrTokenInvalid
	}
	now := m.now()
	if now.After(parent.ExpiresAt) {
		// Expiry is evaluated at verification time; no background sweep.
		m.auditTokenInvalid(ctx, parent.UserID, fp, "session_expired")
		return nil, ErrTokenInvalid
	}
	if !matchTokenSecret(parent.RefreshTokenHash, secret) {
		// Correct session id with a wrong secret is an anomaly, not a
		// typo: kill the session.
		_ = m.sessions.Revoke(ctx, parent.ID)
		m.auditTokenInvalid(ctx, parent.UserID, fp, "secret_mismatch")
		return nil, ErrTokenInvalid
	}

	childID := ids.New()
	rawToken, tokenHash, err := newRefreshToken(childID)
	if err != nil {
		return nil, err
	}
	child := &Session{
		ID:               childID,
		UserID:           parent.UserID,
		Fingerprint:      fp,
		RefreshTokenHash: tokenHash,
		State:            StateActive,
		CreatedAt:        now.UTC(),
		ExpiresAt:        now.UTC().Add(m.refreshTTL),
		RotatedFromID:    parent.ID,
	}
	if err := m.sessions.Rotate(ctx, parent.ID, child); err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			m.auditTokenInvalid(ctx, parent.UserID, fp, "rotation_lost_race")
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	accessToken, accessExp, err := m.signAccess(ctx, parent.UserID, now)
	if err != nil {
		return nil, err
	}

	obs.CountRefresh("success")
	metadata := map[string]string{
		"session_id":   child.ID,
		"rotated_from": parent.ID,
	}
	if drift := parent.Fingerprint.Diff(fp); len(drift) > 0 {
		metadata["fingerprint_drift"] = strings.Join(drift, ",")
	}
	m.record(ctx, audit.Event{
		Type:      audit.EventTokenRefreshed,
		UserID:    parent.UserID,
		IP:        fp.IPAddress,
		UserAgent: fp.UserAgent,
		Metadata:  metadata,
	})

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rawToken,
		RefreshExpiresAt: child.ExpiresAt,
	}, nil
}

// Logout revokes the session owning the presented refresh token. Idempotent:
// unknown tokens and already-terminal sessions succeed silently.
func (m *Manager) Logout(ctx context.Context, refreshToken string, fp Fingerprint) error {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	sess, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}
	if sess.State.Terminal() {
		return nil
	}
	if !matchTokenSecret(sess.RefreshTokenHash, secret) {
		return nil
	}
	if err := m.sessions.Revoke(ctx, sess.ID); err != nil {
		return err
	}
	m.record(ctx, audit.Event{
		Type:      audit.EventLogout,
		UserID:    sess.UserID,
		IP:        fp.IPAddress,
		UserAgent: fp.UserAgent,
		Metadata:  map[string]string{"session_id": sess.ID},
	})
	return nil
}

// VerifyAccessToken validates an access token by signature and expiry alone;
// no storage lookup happens on this path.
func (m *Manager) VerifyAccessToken(token string) (*AccessClaims, error) {
	return verifyAccessToken(m.secret, m.issuer, token, m.now)
}

func (m *Manager) openSession(ctx context.Context, userID string, fp Fingerprint) (TokenPair, *Session, error) {
	now := m.now()
	sessionID := ids.New()
	rawToken, tokenHash, err := newRefreshToken(sessionID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	sess := &Session{
		ID:               sessionID,
		UserID:           userID,
		Fingerprint:      fp,
		RefreshTokenHash: tokenHash,
		State:            StateActive,
		CreatedAt:        now.UTC(),
		ExpiresAt:        now.UTC().Add(m.refreshTTL),
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return TokenPair{}, nil, err
	}
	accessToken, accessExp, err := m.signAccess(ctx, userID, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rawToken,
		RefreshExpiresAt: sess.ExpiresAt,
	}, sess, nil
}

func (m *Manager) signAccess(ctx context.Context, userID string, now time.Time) (string, time.Time, error) {
	grants, err := m.grants.GrantsForUser(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	return signAccessToken(m.secret, m.issuer, userID, grants, now, m.accessTTL)
}

func (m *Manager) auditLoginFailed(ctx context.Context, email string, fp Fingerprint, reason string) {
	obs.CountLogin("failure")
	m.record(ctx, audit.Event{
		Type:      audit.EventLoginFailed,
		Email:     email,
		IP:        fp.IPAddress,
		UserAgent: fp.UserAgent,
		Metadata:  map[string]string{"reason": reason},
	})
}

func (m *Manager) auditTokenInvalid(ctx context.Context, userID string, fp Fingerprint, reason string) {
	obs.CountRefresh("failure")
	m.record(ctx, audit.Event{
		Type:      audit.EventTokenInvalid,
		UserID:    userID,
		IP:        fp.IPAddress,
		UserAgent: fp.UserAgent,
		Metadata:  map[string]string{"reason": reason},
	})
}

func (m *Manager) record(ctx context.Context, event audit.Event) {
	m.recorder.Record(ctx, event)
}

var _ GrantSource = (*authz.Service)(nil)
