package rbac

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/sentinel/internal/shared"
)

type memoryUser struct {
	User
	passwordHash string
	roles        map[string]struct{}
	direct       map[string]struct{}
}

// MemoryStore is a thread-safe Store kept in process.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	users       map[int64]*memoryUser
	roles       map[string]Role
	permissions map[string]Permission
	grants      map[string]map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]*memoryUser),
		roles:       make(map[string]Role),
		permissions: make(map[string]Permission),
		grants:      make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) User(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u.User, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u.User, nil
		}
	}
	return User{}, ErrNotFound
}

// PasswordHash returns the stored hash for email.
func (s *MemoryStore) PasswordHash(_ context.Context, email string) (User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u.User, u.passwordHash, nil
		}
	}
	return User{}, "", ErrNotFound
}

func (s *MemoryStore) UserRoles(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return sortedKeys(u.roles), nil
}

func (s *MemoryStore) DirectPermissions(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return sortedKeys(u.direct), nil
}

func (s *MemoryStore) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	effective := make(map[string]struct{}, len(u.direct))
	for perm := range u.direct {
		effective[perm] = struct{}{}
	}
	for role := range u.roles {
		for perm := range s.grants[role] {
			effective[perm] = struct{}{}
		}
	}
	return sortedKeys(effective), nil
}

func (s *MemoryStore) ListRoles(context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (s *MemoryStore) ListPermissions(context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := make([]Permission, 0, len(s.permissions))
	for _, perm := range s.permissions {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (s *MemoryStore) RolePermissions(_ context.Context, role string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[role]; !ok {
		return nil, ErrNotFound
	}
	return sortedKeys(s.grants[role]), nil
}

func (s *MemoryStore) EnsureUser(_ context.Context, email, name, passwordHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u.User, nil
		}
	}
	u := &memoryUser{
		User:         User{ID: s.id(), Name: name, Email: email, Active: true},
		passwordHash: passwordHash,
		roles:        make(map[string]struct{}),
		direct:       make(map[string]struct{}),
	}
	s.users[u.ID] = u
	return u.User, nil
}

// SetUserActive flips the active flag of a user.
func (s *MemoryStore) SetUserActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	return nil
}

func (s *MemoryStore) EnsureRole(_ context.Context, name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role, ok := s.roles[name]; ok {
		return role, nil
	}
	role := Role{ID: s.id(), Name: name, Guard: shared.GuardWeb, CreatedAt: time.Now().UTC()}
	s.roles[name] = role
	s.grants[name] = make(map[string]struct{})
	return role, nil
}

func (s *MemoryStore) EnsurePermission(_ context.Context, name string) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perm, ok := s.permissions[name]; ok {
		return perm, nil
	}
	perm := Permission{ID: s.id(), Name: name, Guard: shared.GuardWeb}
	s.permissions[name] = perm
	return perm, nil
}

func (s *MemoryStore) SyncRolePermissions(_ context.Context, role string, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role]; !ok {
		return ErrNotFound
	}
	next := make(map[string]struct{}, len(permissions))
	for _, perm := range permissions {
		if _, ok := s.permissions[perm]; !ok {
			return ErrNotFound
		}
		next[perm] = struct{}{}
	}
	s.grants[role] = next
	return nil
}

func (s *MemoryStore) AssignRole(_ context.Context, userID int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.roles[role]; !ok {
		return ErrNotFound
	}
	u.roles[role] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveRole(_ context.Context, userID int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := u.roles[role]; !ok {
		return ErrNotFound
	}
	delete(u.roles, role)
	return nil
}

func (s *MemoryStore) GrantPermission(_ context.Context, userID int64, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.permissions[permission]; !ok {
		return ErrNotFound
	}
	u.direct[permission] = struct{}{}
	return nil
}

func (s *MemoryStore) RevokePermission(_ context.Context, userID int64, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := u.direct[permission]; !ok {
		return ErrNotFound
	}
	delete(u.direct, permission)
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
