package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// DecisionObserver counts authorization outcomes.
type DecisionObserver interface {
	ObserveDecision(kind string, allowed bool)
}

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Engine   *authz.Engine
	Loader   Loader
	Errors   httpx.Errors
	Logger   *slog.Logger
	Observer DecisionObserver
}

// LoadPrincipal resolves the session user into a principal and stores it in
// the request context. Requests without a session user pass through
// anonymously.
func (m Middleware) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.currentUserID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Loader.LoadPrincipal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			m.Errors.Render(w, r, httpx.Trace(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), principal)))
	})
}

// RequirePolicy guards a route with the policy rule for action on resource.
func (m Middleware) RequirePolicy(action authz.Action, resource authz.ResourceType) func(http.Handler) http.Handler {
	return m.guard("policy", func(p authz.Principal) bool {
		return m.Engine.PolicyDecision(p, action, resource, nil)
	})
}

// RequireGate guards a route with a named gate.
func (m Middleware) RequireGate(ability string) func(http.Handler) http.Handler {
	return m.guard("gate", func(p authz.Principal) bool {
		return m.Engine.GateDecision(p, ability)
	})
}

// Allows reports whether the request principal passes the gate for ability.
// It never writes a response; handlers use it to trim what they return.
func (m Middleware) Allows(r *http.Request, ability string) bool {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		return false
	}
	allowed := m.Engine.GateDecision(principal, ability)
	m.observe("gate", allowed)
	return allowed
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard("permission", func(p authz.Principal) bool {
		if len(normalized) == 0 {
			return true
		}
		for _, perm := range normalized {
			if m.Engine.CheckPermission(p, perm) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard("permission", func(p authz.Principal) bool {
		for _, perm := range normalized {
			if !m.Engine.CheckPermission(p, perm) {
				return false
			}
		}
		return true
	})
}

// Authorize checks a policy against a loaded resource instance from inside a
// handler.
func (m Middleware) Authorize(r *http.Request, action authz.Action, resourceType authz.ResourceType, resource any) error {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		return httpx.ErrUnauthorized
	}
	allowed := m.Engine.PolicyDecision(principal, action, resourceType, resource)
	m.observe("policy", allowed)
	if !allowed {
		return httpx.ErrForbidden
	}
	return nil
}

func (m Middleware) guard(kind string, decide func(authz.Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := authz.PrincipalFromContext(r.Context())
			if !ok {
				m.Errors.Render(w, r, httpx.ErrUnauthorized)
				return
			}
			allowed := decide(principal)
			m.observe(kind, allowed)
			if !allowed {
				if m.Logger != nil {
					m.Logger.Debug("authorization denied", slog.String("kind", kind), slog.Int64("user_id", principal.ID), slog.String("path", r.URL.Path))
				}
				m.Errors.Render(w, r, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) observe(kind string, allowed bool) {
	if m.Observer != nil {
		m.Observer.ObserveDecision(kind, allowed)
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	id, err := shared.SessionUserID(r.Context())
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac session user", slog.Any("error", err))
		}
		return 0, false
	}
	return id, id > 0
}

// Tokens are case sensitive; only whitespace and duplicates are dropped.
func normalizePermissions(perms []string) []string {
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" {
			normalized = append(normalized, p)
		}
	}
	return dedupe(normalized)
}
