package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aedile.org/internal/authz"
	"aedile.org/internal/session"
)

func (s *Store) ListRoles(ctx context.Context) ([]authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, code, name, description, created_at, updated_at
		from roles
		order by code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []authz.Role
	for rows.Next() {
		var (
			role authz.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]authz.CatalogPermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, resource, action, scope, description, created_at
		from permissions
		order by resource, action, scope nulls first
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) CreateRole(ctx context.Context, role authz.Role, permissionIDs []string) (authz.Role, error) {
	if s.db == nil {
		return authz.Role{}, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into roles (id, code, name, description)
		values ($1, $2, $3, $4)
		returning id, code, name, description, created_at, updated_at
	`, role.ID, role.Code, role.Name, nullIfEmpty(role.Description))
	var (
		created authz.Role
		desc    sql.NullString
	)
	if err := row.Scan(&created.ID, &created.Code, &created.Name, &desc, &created.CreatedAt, &created.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.Role{}, authz.ErrConflict
		}
		return authz.Role{}, err
	}
	if desc.Valid {
		created.Description = desc.String
	}

	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, created.ID, permID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return authz.Role{}, fmt.Errorf("%w: permission %s", authz.ErrNotFound, permID)
			}
			return authz.Role{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return authz.Role{}, err
	}

	perms, err := s.rolePermissions(ctx, created.ID)
	if err != nil {
		return authz.Role{}, err
	}
	created.Permissions = perms
	return created, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	// Re-assigning an already-held role is a success, not a conflict.
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]authz.CatalogPermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.resource, p.action, p.scope, p.description, p.created_at
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by p.resource, p.action
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*session.UserCredential, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var user session.UserCredential
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, active, verified
		from users
		where email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Active, &user.Verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) rolePermissions(ctx context.Context, roleID string) ([]authz.CatalogPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.resource, p.action, p.scope, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]authz.CatalogPermission, error) {
	var perms []authz.CatalogPermission
	for rows.Next() {
		var (
			perm  authz.CatalogPermission
			scope sql.NullString
			desc  sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.Resource, &perm.Action, &scope, &desc, &perm.CreatedAt); err != nil {
			return nil, err
		}
		if scope.Valid {
			perm.Scope = authz.Scope(scope.String)
		}
		if desc.Valid {
			perm.Description = desc.String
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
