package rbac

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/sentinel/internal/authz"
)

//go:embed seed/catalog.yaml
var defaultCatalog []byte

// RoleGrant lists the permissions a seeded role receives. All grants every
// catalog permission minus Except.
type RoleGrant struct {
	Name        string   `yaml:"name"`
	All         bool     `yaml:"all"`
	Except      []string `yaml:"except"`
	Permissions []string `yaml:"permissions"`
}

// SeedUser is an account created by the seeder.
type SeedUser struct {
	Email string   `yaml:"email"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// Catalog is the canonical list of permissions and default role grants.
type Catalog struct {
	Guard       string      `yaml:"guard"`
	Permissions []string    `yaml:"permissions"`
	Roles       []RoleGrant `yaml:"roles"`
	Users       []SeedUser  `yaml:"users"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and checks a catalog document. Unknown fields are
// rejected so misspelled keys do not silently drop grants.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("rbac: parse catalog: %w", err)
	}
	if err := c.check(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) check() error {
	known := make(map[string]struct{}, len(c.Permissions))
	var errs []error
	for _, perm := range c.Permissions {
		if strings.TrimSpace(perm) != perm || perm == "" {
			errs = append(errs, fmt.Errorf("permission %q has surrounding whitespace", perm))
			continue
		}
		if _, dup := known[perm]; dup {
			errs = append(errs, fmt.Errorf("permission %q listed twice", perm))
		}
		known[perm] = struct{}{}
	}
	roles := make(map[string]struct{}, len(c.Roles))
	for _, role := range c.Roles {
		if role.Name == "" {
			errs = append(errs, errors.New("role without name"))
			continue
		}
		roles[role.Name] = struct{}{}
		for _, perm := range append(append([]string{}, role.Except...), role.Permissions...) {
			if _, ok := known[perm]; !ok {
				errs = append(errs, fmt.Errorf("role %q references unknown permission %q", role.Name, perm))
			}
		}
		if role.All && len(role.Permissions) > 0 {
			errs = append(errs, fmt.Errorf("role %q sets both all and permissions", role.Name))
		}
	}
	for _, user := range c.Users {
		for _, role := range user.Roles {
			if _, ok := roles[role]; !ok {
				errs = append(errs, fmt.Errorf("user %q references unknown role %q", user.Email, role))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("rbac: invalid catalog: %w", errors.Join(errs...))
	}
	return nil
}

// Grants resolves the permission list of role.
func (c Catalog) Grants(role string) ([]string, bool) {
	for _, grant := range c.Roles {
		if grant.Name != role {
			continue
		}
		if !grant.All {
			return append([]string(nil), grant.Permissions...), true
		}
		except := make(map[string]struct{}, len(grant.Except))
		for _, perm := range grant.Except {
			except[perm] = struct{}{}
		}
		out := make([]string, 0, len(c.Permissions))
		for _, perm := range c.Permissions {
			if _, skip := except[perm]; !skip {
				out = append(out, perm)
			}
		}
		return out, true
	}
	return nil, false
}

// SeedOptions tunes Seed.
type SeedOptions struct {
	// PasswordHash is stored for newly created seed users. Existing users keep
	// their password.
	PasswordHash string
	// SkipUsers disables user creation.
	SkipUsers bool
}

// SeedResult reports what Seed touched.
type SeedResult struct {
	Permissions int
	Roles       int
	Users       int
}

// Seed idempotently applies the catalog to store.
func Seed(ctx context.Context, store Store, catalog Catalog, opts SeedOptions) (SeedResult, error) {
	var result SeedResult
	for _, perm := range catalog.Permissions {
		if _, err := store.EnsurePermission(ctx, perm); err != nil {
			return result, fmt.Errorf("rbac: seed permission %q: %w", perm, err)
		}
		result.Permissions++
	}
	for _, grant := range catalog.Roles {
		if _, err := store.EnsureRole(ctx, grant.Name); err != nil {
			return result, fmt.Errorf("rbac: seed role %q: %w", grant.Name, err)
		}
		perms, _ := catalog.Grants(grant.Name)
		if err := store.SyncRolePermissions(ctx, grant.Name, perms); err != nil {
			return result, fmt.Errorf("rbac: sync role %q: %w", grant.Name, err)
		}
		result.Roles++
	}
	if opts.SkipUsers {
		return result, nil
	}
	for _, seedUser := range catalog.Users {
		user, err := store.EnsureUser(ctx, seedUser.Email, seedUser.Name, opts.PasswordHash)
		if err != nil {
			return result, fmt.Errorf("rbac: seed user %q: %w", seedUser.Email, err)
		}
		for _, role := range seedUser.Roles {
			if err := store.AssignRole(ctx, user.ID, role); err != nil {
				return result, fmt.Errorf("rbac: assign %q to %q: %w", role, seedUser.Email, err)
			}
		}
		result.Users++
	}
	return result, nil
}

// ValidateEngine checks every policy and gate token of engine against the
// permissions stored in store.
func ValidateEngine(ctx context.Context, engine *authz.Engine, store Store) error {
	perms, err := store.ListPermissions(ctx)
	if err != nil {
		return fmt.Errorf("rbac: list permissions: %w", err)
	}
	known := make([]string, 0, len(perms))
	for _, perm := range perms {
		known = append(known, perm.Name)
	}
	return engine.Validate(known)
}
