// Package users administers the accounts that roles and permissions are
// assigned to.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = fmt.Errorf("users: %w", httpx.ErrNotFound)
	// ErrEmailTaken is returned when another account uses the email.
	ErrEmailTaken = fmt.Errorf("users: email taken: %w", httpx.ErrDuplicate)
)

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput is the payload for a new account.
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) (User, error)
}
