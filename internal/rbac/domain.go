package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = fmt.Errorf("rbac: %w", httpx.ErrDuplicate)
)

// Role represents a named grouping of permissions.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Guard     string    `json:"guard"`
	CreatedAt time.Time `json:"createdAt"`
}

// Permission represents an atomic capability token such as "view Post".
type Permission struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Guard string `json:"guard"`
}

// User is the identity part of a principal.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Active is false once the account has been deactivated; such users
	// resolve to no principal.
	Active bool `json:"active"`
}

// Access summarises how a user obtained their permissions.
type Access struct {
	User      User     `json:"user"`
	Roles     []string `json:"roles"`
	Direct    []string `json:"direct"`
	Effective []string `json:"effective"`
}

// Reader is the read path used to build principals.
type Reader interface {
	User(ctx context.Context, id int64) (User, error)
	UserRoles(ctx context.Context, userID int64) ([]string, error)
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Store persists roles, permissions and their assignments.
type Store interface {
	Reader
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RolePermissions(ctx context.Context, role string) ([]string, error)
	DirectPermissions(ctx context.Context, userID int64) ([]string, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	EnsureUser(ctx context.Context, email, name, passwordHash string) (User, error)
	EnsureRole(ctx context.Context, name string) (Role, error)
	EnsurePermission(ctx context.Context, name string) (Permission, error)
	SyncRolePermissions(ctx context.Context, role string, permissions []string) error
	AssignRole(ctx context.Context, userID int64, role string) error
	RemoveRole(ctx context.Context, userID int64, role string) error
	GrantPermission(ctx context.Context, userID int64, permission string) error
	RevokePermission(ctx context.Context, userID int64, permission string) error
}
