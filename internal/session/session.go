package session

import "time"

// State is the lifecycle phase of a session record. Rotated, expired and
// revoked are terminal; only an active session can be refreshed or revoked.
type State string

const (
	StateActive  State = "active"
	StateRotated State = "rotated"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateRotated || s == StateExpired || s == StateRevoked
}

// Session is one link in a refresh chain. RefreshTokenHash holds only the
// one-way hash of the token secret; the raw token is never stored. Rotation
// produces exactly one child, linked through RotatedFromID/RotatedToID.
type Session struct {
	ID               string
	UserID           string
	Fingerprint      Fingerprint
	RefreshTokenHash string
	State            State
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RotatedFromID    string
	RotatedToID      string
}
