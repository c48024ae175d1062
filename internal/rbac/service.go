package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/authz"
)

// Invalidator drops cached principals after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Recorder appends activity entries.
type Recorder interface {
	Record(ctx context.Context, entry activity.Entry) error
}

// Service orchestrates RBAC administration.
type Service struct {
	store    Store
	cache    Invalidator
	recorder Recorder
	logger   *slog.Logger
}

// NewService constructs a Service. cache and recorder may be nil.
func NewService(store Store, cache Invalidator, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, recorder: recorder, logger: logger}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// RolePermissions lists the grants of a role.
func (s *Service) RolePermissions(ctx context.Context, role string) ([]string, error) {
	return s.store.RolePermissions(ctx, strings.TrimSpace(role))
}

// UserAccess describes the roles, direct grants and effective permissions
// of a user.
func (s *Service) UserAccess(ctx context.Context, userID int64) (Access, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	roles, err := s.store.UserRoles(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	direct, err := s.store.DirectPermissions(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	effective, err := s.store.EffectivePermissions(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	return Access{User: user, Roles: roles, Direct: direct, Effective: effective}, nil
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, actor authz.Principal, userID int64, role string) error {
	role = strings.TrimSpace(role)
	if err := s.store.AssignRole(ctx, userID, role); err != nil {
		return err
	}
	return s.changed(ctx, actor, "role.assigned", fmt.Sprintf("Assigned role %s", role), userID, map[string]any{"role": role})
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, actor authz.Principal, userID int64, role string) error {
	role = strings.TrimSpace(role)
	if err := s.store.RemoveRole(ctx, userID, role); err != nil {
		return err
	}
	return s.changed(ctx, actor, "role.removed", fmt.Sprintf("Removed role %s", role), userID, map[string]any{"role": role})
}

// GrantPermission gives a user a direct permission.
func (s *Service) GrantPermission(ctx context.Context, actor authz.Principal, userID int64, permission string) error {
	permission = strings.TrimSpace(permission)
	if err := s.store.GrantPermission(ctx, userID, permission); err != nil {
		return err
	}
	return s.changed(ctx, actor, "permission.granted", fmt.Sprintf("Granted %s", permission), userID, map[string]any{"permission": permission})
}

// RevokePermission removes a direct permission from a user.
func (s *Service) RevokePermission(ctx context.Context, actor authz.Principal, userID int64, permission string) error {
	permission = strings.TrimSpace(permission)
	if err := s.store.RevokePermission(ctx, userID, permission); err != nil {
		return err
	}
	return s.changed(ctx, actor, "permission.revoked", fmt.Sprintf("Revoked %s", permission), userID, map[string]any{"permission": permission})
}

// SyncRolePermissions replaces the grants of a role.
func (s *Service) SyncRolePermissions(ctx context.Context, actor authz.Principal, role string, permissions []string) error {
	role = strings.TrimSpace(role)
	normalized := make([]string, 0, len(permissions))
	for _, perm := range permissions {
		if perm = strings.TrimSpace(perm); perm != "" {
			normalized = append(normalized, perm)
		}
	}
	normalized = dedupe(normalized)
	if err := s.store.SyncRolePermissions(ctx, role, normalized); err != nil {
		return err
	}
	if err := s.invalidate(ctx); err != nil {
		return err
	}
	return s.record(ctx, activity.Entry{
		LogName:     activity.LogAccess,
		Event:       "role.synced",
		Description: fmt.Sprintf("Synced %d permissions on role %s", len(normalized), role),
		SubjectType: "Role",
		SubjectID:   role,
		CauserID:    actor.ID,
		Properties:  map[string]any{"permissions": normalized},
	})
}

func (s *Service) changed(ctx context.Context, actor authz.Principal, event, description string, userID int64, props map[string]any) error {
	if err := s.invalidate(ctx); err != nil {
		return err
	}
	return s.record(ctx, activity.Entry{
		LogName:     activity.LogAccess,
		Event:       event,
		Description: description,
		SubjectType: "User",
		SubjectID:   strconv.FormatInt(userID, 10),
		CauserID:    actor.ID,
		Properties:  props,
	})
}

func (s *Service) invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("rbac: invalidate principals: %w", err)
	}
	return nil
}

// Activity failures are logged; the mutation already happened.
func (s *Service) record(ctx context.Context, entry activity.Entry) error {
	if s.recorder == nil {
		return nil
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Error("rbac record activity", slog.String("event", entry.Event), slog.Any("error", err))
	}
	return nil
}
