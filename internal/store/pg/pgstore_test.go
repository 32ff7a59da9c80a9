package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"aedile.org/internal/authz"
	"aedile.org/internal/session"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotateLosesRaceWhenParentNotActive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update sessions").
		WithArgs("parent-1", "child-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	child := &session.Session{
		ID:            "child-1",
		UserID:        "user-1",
		State:         session.StateActive,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(time.Hour),
		RotatedFromID: "parent-1",
	}
	err := store.Rotate(context.Background(), "parent-1", child)
	if !errors.Is(err, session.ErrTokenInvalid) {
		t.Fatalf("err = %v, want session.ErrTokenInvalid", err)
	}
	expectationsMet(t, mock)
}

func TestRotateInsertsChildInSameTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update sessions").
		WithArgs("parent-1", "child-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into sessions").
		WithArgs("child-1", "user-1", sqlmock.AnyArg(), "hash", "active",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	child := &session.Session{
		ID:               "child-1",
		UserID:           "user-1",
		RefreshTokenHash: "hash",
		State:            session.StateActive,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		RotatedFromID:    "parent-1",
	}
	if err := store.Rotate(context.Background(), "parent-1", child); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	expectationsMet(t, mock)
}

func TestFindUnknownSessionIsTokenInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, user_id, fingerprint").
		WithArgs("no-such").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Find(context.Background(), "no-such")
	if !errors.Is(err, session.ErrTokenInvalid) {
		t.Fatalf("err = %v, want session.ErrTokenInvalid", err)
	}
	expectationsMet(t, mock)
}

func TestFindDecodesFingerprintAndLinks(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "fingerprint", "refresh_token_hash", "state",
		"created_at", "expires_at", "rotated_from_id", "rotated_to_id",
	}).AddRow("sess-2", "user-1", []byte(`{"user_agent":"ua","ip_address":"203.0.113.7"}`),
		"hash", "rotated", created, created.Add(time.Hour), "sess-1", "sess-3")
	mock.ExpectQuery("select id, user_id, fingerprint").
		WithArgs("sess-2").
		WillReturnRows(rows)

	sess, err := store.Find(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if sess.State != session.StateRotated {
		t.Fatalf("state = %q, want rotated", sess.State)
	}
	if sess.Fingerprint.IPAddress != "203.0.113.7" {
		t.Fatalf("fingerprint ip = %q", sess.Fingerprint.IPAddress)
	}
	if sess.RotatedFromID != "sess-1" || sess.RotatedToID != "sess-3" {
		t.Fatalf("chain links = %q / %q", sess.RotatedFromID, sess.RotatedToID)
	}
	expectationsMet(t, mock)
}

func TestCreateRoleIsTransactional(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("insert into roles").
		WithArgs("role-1", "BUILDING_MANAGER", "Building manager", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "description", "created_at", "updated_at"}).
			AddRow("role-1", "BUILDING_MANAGER", "Building manager", nil, created, created))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "perm-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "perm-2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("select p.id, p.resource, p.action").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "resource", "action", "scope", "description", "created_at"}).
			AddRow("perm-1", "buildings", "read", "all", nil, created).
			AddRow("perm-2", "reports", "export", nil, nil, created))

	role, err := store.CreateRole(context.Background(), authz.Role{
		ID:   "role-1",
		Code: "BUILDING_MANAGER",
		Name: "Building manager",
	}, []string{"perm-1", "perm-2"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("permissions = %d, want 2", len(role.Permissions))
	}
	if role.Permissions[0].Scope != authz.ScopeAll {
		t.Fatalf("scope = %q, want all", role.Permissions[0].Scope)
	}
	if role.Permissions[1].Scope != authz.ScopeNone {
		t.Fatalf("null scope = %q, want empty", role.Permissions[1].Scope)
	}
	expectationsMet(t, mock)
}

func TestCreateRoleDuplicateCodeIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into roles").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	_, err := store.CreateRole(context.Background(), authz.Role{ID: "role-1", Code: "DUP", Name: "Dup"}, nil)
	if !errors.Is(err, authz.ErrConflict) {
		t.Fatalf("err = %v, want authz.ErrConflict", err)
	}
	expectationsMet(t, mock)
}

func TestCreateRoleRollsBackOnBadPermission(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("insert into roles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "description", "created_at", "updated_at"}).
			AddRow("role-1", "X", "X", nil, created, created))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "ghost").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	_, err := store.CreateRole(context.Background(), authz.Role{ID: "role-1", Code: "X", Name: "X"}, []string{"ghost"})
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("err = %v, want authz.ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	// on conflict do nothing makes the duplicate insert affect zero rows.
	mock.ExpectExec("insert into user_roles").
		WithArgs("user-1", "role-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.AssignRole(context.Background(), "user-1", "role-1"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	expectationsMet(t, mock)
}

func TestAssignRoleUnknownRoleIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into user_roles").
		WithArgs("user-1", "ghost").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.AssignRole(context.Background(), "user-1", "ghost")
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("err = %v, want authz.ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestFindByEmailUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, email, password_hash").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, session.ErrUserNotFound) {
		t.Fatalf("err = %v, want session.ErrUserNotFound", err)
	}
	expectationsMet(t, mock)
}
