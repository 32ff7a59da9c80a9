package audit

import (
	"context"
	"encoding/json"
	"time"

	"aedile.org/internal/ids"
	"aedile.org/internal/obs"
)

// EventType names a security-relevant transition.
type EventType string

const (
	EventLoginSuccess   EventType = "login_success"
	EventLoginFailed    EventType = "login_failed"
	EventTokenRefreshed EventType = "token_refreshed"
	EventTokenInvalid   EventType = "token_invalid"
	EventLogout         EventType = "logout"
	EventRoleCreated    EventType = "role_created"
	EventRoleAssigned   EventType = "role_assigned"
)

// Event is an immutable record of a security-relevant transition. Actor
// identity is best effort: login_failed and token_invalid events may carry
// no user id because identity was never established.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Sink is the durable destination for events.
type Sink interface {
	Append(ctx context.Context, event *Event) error
}

// Recorder writes events to a sink. Append failures are logged and swallowed:
// the authentication decision the event describes has already been made and
// must not be rolled back by a logging problem. A nil sink degrades to
// JSON lines on the shared logger.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// Option configures Recorder behavior.
type Option func(*Recorder)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over sink; sink may be nil.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends the event, filling in identity and timestamp. Never fails.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	if r.sink == nil {
		r.logLine(event)
		return
	}
	if err := r.sink.Append(ctx, &event); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    r.now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit append failed",
			"event": string(event.Type),
			"error": err.Error(),
		})
	}
}

func (r *Recorder) logLine(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	obs.LogRequest(map[string]any{
		"ts":    event.OccurredAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": json.RawMessage(data),
	})
}
