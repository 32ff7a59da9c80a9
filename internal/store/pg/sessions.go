package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aedile.org/internal/session"
)

func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	fp, err := json.Marshal(sess.Fingerprint)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, fingerprint, refresh_token_hash, state, created_at, expires_at, rotated_from_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.UserID, fp, sess.RefreshTokenHash, string(sess.State),
		sess.CreatedAt, sess.ExpiresAt, nullIfEmpty(sess.RotatedFromID))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return session.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id string) (*session.Session, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		sess        session.Session
		fp          []byte
		state       string
		rotatedFrom sql.NullString
		rotatedTo   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, fingerprint, refresh_token_hash, state, created_at, expires_at, rotated_from_id, rotated_to_id
		from sessions
		where id = $1
	`, id).Scan(&sess.ID, &sess.UserID, &fp, &sess.RefreshTokenHash, &state,
		&sess.CreatedAt, &sess.ExpiresAt, &rotatedFrom, &rotatedTo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if len(fp) > 0 {
		if err := json.Unmarshal(fp, &sess.Fingerprint); err != nil {
			return nil, fmt.Errorf("decode fingerprint: %w", err)
		}
	}
	sess.State = session.State(state)
	if rotatedFrom.Valid {
		sess.RotatedFromID = rotatedFrom.String
	}
	if rotatedTo.Valid {
		sess.RotatedToID = rotatedTo.String
	}
	return &sess, nil
}

// Rotate is the concurrency-sensitive step of refresh: the parent row leaves
// the active state only through this guarded update, and the rows-affected
// count decides the race. The losing refresh sees 0 rows and gets
// ErrTokenInvalid before its child is ever inserted.
func (s *Store) Rotate(ctx context.Context, parentID string, child *session.Session) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	fp, err := json.Marshal(child.Fingerprint)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update sessions
		set state = 'rotated', rotated_to_id = $2
		where id = $1 and state = 'active'
	`, parentID, child.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return session.ErrTokenInvalid
	}

	if _, err := tx.ExecContext(ctx, `
		insert into sessions (id, user_id, fingerprint, refresh_token_hash, state, created_at, expires_at, rotated_from_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, child.ID, child.UserID, fp, child.RefreshTokenHash, string(child.State),
		child.CreatedAt, child.ExpiresAt, nullIfEmpty(child.RotatedFromID)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Revoke(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	// Terminal sessions are left untouched; revoking them again is a no-op.
	_, err := s.db.ExecContext(ctx, `
		update sessions
		set state = 'revoked'
		where id = $1 and state = 'active'
	`, id)
	return err
}
