package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"aedile.org/internal/audit"
)

var _ audit.Sink = (*Store)(nil)

// Append inserts one audit event. The audit log is append-only; there is no
// update or delete path through this store.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	var meta []byte
	if len(event.Metadata) > 0 {
		bytes, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, event_type, user_id, email, ip, user_agent, metadata, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, string(event.Type), nullIfEmpty(event.UserID), nullIfEmpty(event.Email),
		nullIfEmpty(event.IP), nullIfEmpty(event.UserAgent), meta, event.OccurredAt)
	return err
}
