package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"aedile.org/internal/authz"
)

// AccessClaims are the verified contents of an access token. The permission
// snapshot is immutable for the token's lifetime: grant changes take effect
// on the next issuance, never retroactively.
type AccessClaims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

func signAccessToken(secret []byte, issuer, userID string, grants []authz.Permission, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := AccessClaims{
		Permissions: permissionCodes(grants),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func verifyAccessToken(secret []byte, issuer, token string, now func() time.Time) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrTokenInvalid
			}
			return secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// newRefreshToken mints an opaque token bound to a session. The wire form is
// "<sessionID>.<secret>"; only the sha256 of the secret is ever stored.
func newRefreshToken(sessionID string) (raw, hash string, err error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	return sessionID + "." + secret, hashTokenSecret(secret), nil
}

func splitRefreshToken(raw string) (sessionID, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashTokenSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// matchTokenSecret compares the stored hash against the presented secret in
// constant time.
func matchTokenSecret(storedHash, secret string) bool {
	actual := hashTokenSecret(secret)
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}

func permissionCodes(grants []authz.Permission) []string {
	codes := make([]string, 0, len(grants))
	for _, g := range grants {
		codes = append(codes, g.Code())
	}
	sort.Strings(codes)
	return codes
}
