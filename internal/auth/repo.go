package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Repository loads credentials and keeps the login session audit table.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository is the Postgres Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Column order matches the User fields.
const userColumns = `id, name, email, password_hash, is_active, created_at, updated_at`

// FindByEmail matches the address case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("auth: query user: %w", err)
	}
	user, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[User])
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, shared.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("auth: scan user: %w", err)
	}
	return user, nil
}

// CreateSession upserts the audit row, so a regenerated id that collides
// simply takes over the row.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_sessions (id, user_id, expires_at, ip, user_agent)
VALUES (@id, @user_id, @expires_at, NULLIF(@ip, ''), NULLIF(@ua, ''))
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`,
		pgx.NamedArgs{
			"id":         id,
			"user_id":    userID,
			"expires_at": expiresAt.UTC(),
			"ip":         ip,
			"ua":         ua,
		})
	if err != nil {
		return fmt.Errorf("auth: record session: %w", err)
	}
	return nil
}

func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Repository = (*PGRepository)(nil)
