package rbac

import (
	"context"

	"github.com/odyssey-erp/sentinel/internal/authz"
)

// Loader produces the principal snapshot for a user.
type Loader interface {
	LoadPrincipal(ctx context.Context, userID int64) (authz.Principal, error)
}

// StoreLoader reads principals straight from a Reader.
type StoreLoader struct {
	Store Reader
}

// LoadPrincipal builds a principal from the user, their roles and their
// effective permissions. A deactivated user is reported as ErrNotFound, so
// a session that outlives the deactivation turns anonymous.
func (l StoreLoader) LoadPrincipal(ctx context.Context, userID int64) (authz.Principal, error) {
	user, err := l.Store.User(ctx, userID)
	if err != nil {
		return authz.Principal{}, err
	}
	if !user.Active {
		return authz.Principal{}, ErrNotFound
	}
	roles, err := l.Store.UserRoles(ctx, userID)
	if err != nil {
		return authz.Principal{}, err
	}
	perms, err := l.Store.EffectivePermissions(ctx, userID)
	if err != nil {
		return authz.Principal{}, err
	}
	return authz.NewPrincipal(user.ID, user.Name, user.Email, roles, perms), nil
}
