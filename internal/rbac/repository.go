package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sentinel/internal/platform/db"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// PGRepository implements Store on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) User(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, is_active FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Active)
	return u, mapErr(err)
}

func (r *PGRepository) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, is_active FROM users WHERE email = $1`, normalizeEmail(email)).Scan(&u.ID, &u.Name, &u.Email, &u.Active)
	return u, mapErr(err)
}

func (r *PGRepository) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return r.strings(ctx, `SELECT r.name FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1 AND r.guard_name = $2
ORDER BY r.name`, userID, shared.GuardWeb)
}

func (r *PGRepository) DirectPermissions(ctx context.Context, userID int64) ([]string, error) {
	return r.strings(ctx, `SELECT p.name FROM permissions p
JOIN user_permissions up ON up.permission_id = p.id
WHERE up.user_id = $1 AND p.guard_name = $2
ORDER BY p.name`, userID, shared.GuardWeb)
}

// EffectivePermissions returns the union of role and direct grants.
func (r *PGRepository) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return r.strings(ctx, `SELECT p.name FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN user_roles ur ON ur.role_id = rp.role_id
WHERE ur.user_id = $1 AND p.guard_name = $2
UNION
SELECT p.name FROM permissions p
JOIN user_permissions up ON up.permission_id = p.id
WHERE up.user_id = $1 AND p.guard_name = $2
ORDER BY 1`, userID, shared.GuardWeb)
}

func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, guard_name, created_at FROM roles WHERE guard_name = $1 ORDER BY name`, shared.GuardWeb)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Guard, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, guard_name FROM permissions WHERE guard_name = $1 ORDER BY name`, shared.GuardWeb)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Guard); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (r *PGRepository) RolePermissions(ctx context.Context, role string) ([]string, error) {
	if _, err := r.roleID(ctx, r.pool, role); err != nil {
		return nil, err
	}
	return r.strings(ctx, `SELECT p.name FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN roles r ON r.id = rp.role_id
WHERE r.name = $1 AND r.guard_name = $2
ORDER BY p.name`, role, shared.GuardWeb)
}

func (r *PGRepository) EnsureUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
RETURNING id, name, email, is_active`, normalizeEmail(email), name, passwordHash).Scan(&u.ID, &u.Name, &u.Email, &u.Active)
	return u, mapErr(err)
}

func (r *PGRepository) EnsureRole(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (name, guard_name) VALUES ($1, $2)
ON CONFLICT (name, guard_name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, guard_name, created_at`, name, shared.GuardWeb).Scan(&role.ID, &role.Name, &role.Guard, &role.CreatedAt)
	return role, mapErr(err)
}

func (r *PGRepository) EnsurePermission(ctx context.Context, name string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions (name, guard_name) VALUES ($1, $2)
ON CONFLICT (name, guard_name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, guard_name`, name, shared.GuardWeb).Scan(&perm.ID, &perm.Name, &perm.Guard)
	return perm, mapErr(err)
}

// SyncRolePermissions replaces the grants of role in a single transaction.
func (r *PGRepository) SyncRolePermissions(ctx context.Context, role string, permissions []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		roleID, err := r.roleID(ctx, tx, role)
		if err != nil {
			return err
		}
		var known int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE name = ANY($1) AND guard_name = $2`, permissions, shared.GuardWeb).Scan(&known); err != nil {
			return err
		}
		if known != len(dedupe(permissions)) {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, id FROM permissions WHERE name = ANY($2) AND guard_name = $3`, roleID, permissions, shared.GuardWeb)
		return mapErr(err)
	})
}

func (r *PGRepository) AssignRole(ctx context.Context, userID int64, role string) error {
	tag, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id)
SELECT u.id, r.id FROM users u, roles r WHERE u.id = $1 AND r.name = $2 AND r.guard_name = $3
ON CONFLICT DO NOTHING`, userID, role, shared.GuardWeb)
	return r.affected(ctx, tag, err, userID, func() error {
		_, err := r.roleID(ctx, r.pool, role)
		return err
	})
}

func (r *PGRepository) RemoveRole(ctx context.Context, userID int64, role string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles ur USING roles r
WHERE ur.role_id = r.id AND ur.user_id = $1 AND r.name = $2 AND r.guard_name = $3`, userID, role, shared.GuardWeb)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) GrantPermission(ctx context.Context, userID int64, permission string) error {
	tag, err := r.pool.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id)
SELECT u.id, p.id FROM users u, permissions p WHERE u.id = $1 AND p.name = $2 AND p.guard_name = $3
ON CONFLICT DO NOTHING`, userID, permission, shared.GuardWeb)
	return r.affected(ctx, tag, err, userID, func() error {
		var id int64
		return mapErr(r.pool.QueryRow(ctx, `SELECT id FROM permissions WHERE name = $1 AND guard_name = $2`, permission, shared.GuardWeb).Scan(&id))
	})
}

func (r *PGRepository) RevokePermission(ctx context.Context, userID int64, permission string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_permissions up USING permissions p
WHERE up.permission_id = p.id AND up.user_id = $1 AND p.name = $2 AND p.guard_name = $3`, userID, permission, shared.GuardWeb)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// affected distinguishes an idempotent re-insert from a missing user, role
// or permission when an INSERT ... SELECT touched no rows.
func (r *PGRepository) affected(ctx context.Context, tag pgconn.CommandTag, err error, userID int64, exists func() error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.User(ctx, userID); err != nil {
		return err
	}
	return exists()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PGRepository) roleID(ctx context.Context, q querier, role string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1 AND guard_name = $2`, role, shared.GuardWeb).Scan(&id)
	return id, mapErr(err)
}

func (r *PGRepository) strings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
