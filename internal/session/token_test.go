package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"aedile.org/internal/authz"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("round-trip-secret")
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	grants := []authz.Permission{
		{Resource: "users", Action: "read", Scope: authz.ScopeBuilding},
		{Resource: "reports", Action: "export"},
	}

	signed, expiresAt, err := signAccessToken(secret, "aedile", "user-1", grants, now, 15*time.Minute)
	if err != nil {
		t.Fatalf("signAccessToken: %v", err)
	}
	if want := now.Add(15 * time.Minute); !expiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", expiresAt, want)
	}

	claims, err := verifyAccessToken(secret, "aedile", signed, func() time.Time { return now.Add(time.Minute) })
	if err != nil {
		t.Fatalf("verifyAccessToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatal("jti is empty")
	}
	want := []string{"REPORTS:EXPORT", "USERS:READ:BUILDING"}
	if strings.Join(claims.Permissions, " ") != strings.Join(want, " ") {
		t.Fatalf("permissions = %v, want %v", claims.Permissions, want)
	}
}

func TestVerifyAccessTokenRejections(t *testing.T) {
	secret := []byte("round-trip-secret")
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now.Add(time.Minute) }
	signed, _, err := signAccessToken(secret, "aedile", "user-1", nil, now, 15*time.Minute)
	if err != nil {
		t.Fatalf("signAccessToken: %v", err)
	}

	cases := []struct {
		name   string
		token  string
		secret []byte
		issuer string
		now    func() time.Time
	}{
		{"empty token", "", secret, "aedile", clock},
		{"garbage token", "not.a.jwt", secret, "aedile", clock},
		{"wrong secret", signed, []byte("another-secret"), "aedile", clock},
		{"wrong issuer", signed, secret, "someone-else", clock},
		{"expired", signed, secret, "aedile", func() time.Time { return now.Add(time.Hour) }},
	}
	for _, tc := range cases {
		if _, err := verifyAccessToken(tc.secret, tc.issuer, tc.token, tc.now); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: err = %v, want ErrTokenInvalid", tc.name, err)
		}
	}
}

func TestVerifyAccessTokenRejectsMissingSubject(t *testing.T) {
	secret := []byte("round-trip-secret")
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	signed, _, err := signAccessToken(secret, "aedile", "", nil, now, 15*time.Minute)
	if err != nil {
		t.Fatalf("signAccessToken: %v", err)
	}
	if _, err := verifyAccessToken(secret, "aedile", signed, func() time.Time { return now }); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshTokenWireFormat(t *testing.T) {
	raw, hash, err := newRefreshToken("sess-1")
	if err != nil {
		t.Fatalf("newRefreshToken: %v", err)
	}
	sessionID, secret, err := splitRefreshToken(raw)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}
	if sessionID != "sess-1" {
		t.Fatalf("sessionID = %q, want sess-1", sessionID)
	}
	if !matchTokenSecret(hash, secret) {
		t.Fatal("stored hash does not match the minted secret")
	}
	if matchTokenSecret(hash, secret+"x") {
		t.Fatal("tampered secret matched")
	}
	if strings.Contains(hash, secret) {
		t.Fatal("hash leaks the raw secret")
	}
}

func TestSplitRefreshTokenRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "nodot", ".secret", "id.", "a.b.c"} {
		if _, _, err := splitRefreshToken(raw); err == nil {
			t.Fatalf("splitRefreshToken(%q) succeeded, want error", raw)
		}
	}
}
