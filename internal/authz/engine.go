package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Decision is the outcome of a check together with the reason it was reached.
type Decision struct {
	Allowed bool
	Reason  string
}

// Engine answers permission, policy and gate checks. It holds no mutable
// state after construction and is safe for concurrent use.
type Engine struct {
	policies     map[ResourceType]Policy
	gates        *Gates
	overrideRole string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicies registers policies, replacing any previous policy for the
// same resource type.
func WithPolicies(policies ...Policy) Option {
	return func(e *Engine) {
		for _, p := range policies {
			e.policies[p.Resource] = p
		}
	}
}

// WithGates sets the gate registry.
func WithGates(gates *Gates) Option {
	return func(e *Engine) { e.gates = gates }
}

// WithOverrideRole changes the role that bypasses every check.
func WithOverrideRole(role string) Option {
	return func(e *Engine) { e.overrideRole = strings.TrimSpace(role) }
}

// NewEngine builds an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policies:     make(map[ResourceType]Policy),
		gates:        NewGates(),
		overrideRole: shared.OverrideRole,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultEngine wires the default policies and gates. Extra options are
// applied after them.
func NewDefaultEngine(opts ...Option) (*Engine, error) {
	gates, err := DefaultGates()
	if err != nil {
		return nil, err
	}
	base := []Option{WithPolicies(DefaultPolicies()...), WithGates(gates)}
	return NewEngine(append(base, opts...)...), nil
}

// OverrideRole returns the role that bypasses every check.
func (e *Engine) OverrideRole() string {
	return e.overrideRole
}

// Gates exposes the gate registry.
func (e *Engine) Gates() *Gates {
	return e.gates
}

// IsSuperUser reports whether p holds the override role.
func (e *Engine) IsSuperUser(p Principal) bool {
	return e.overrideRole != "" && p.HasRole(e.overrideRole)
}

// CheckPermission reports whether p holds token or the override role.
func (e *Engine) CheckPermission(p Principal, token string) bool {
	if e.IsSuperUser(p) {
		return true
	}
	return p.HasPermission(token)
}

// PolicyDecision dispatches to the rule registered for action on
// resourceType. Unknown resource types and actions are denied.
func (e *Engine) PolicyDecision(p Principal, action Action, resourceType ResourceType, resource any) bool {
	return e.DecidePolicy(p, action, resourceType, resource).Allowed
}

// DecidePolicy is PolicyDecision with the reason attached.
func (e *Engine) DecidePolicy(p Principal, action Action, resourceType ResourceType, resource any) Decision {
	if e.IsSuperUser(p) {
		return Decision{Allowed: true, Reason: string(reasonOverride)}
	}
	policy, ok := e.policies[resourceType]
	if !ok {
		return Decision{Reason: string(reasonNoRule)}
	}
	rule, ok := policy.Rules[action]
	if !ok {
		return Decision{Reason: string(reasonNoRule)}
	}
	allowed, reason := rule.evaluate(p, resource)
	return Decision{Allowed: allowed, Reason: string(reason)}
}

// GateDecision evaluates the gate registered for ability. Unknown abilities
// are denied.
func (e *Engine) GateDecision(p Principal, ability string) bool {
	return e.DecideGate(p, ability).Allowed
}

// DecideGate is GateDecision with the reason attached.
func (e *Engine) DecideGate(p Principal, ability string) Decision {
	if e.IsSuperUser(p) {
		return Decision{Allowed: true, Reason: string(reasonOverride)}
	}
	gate, ok := e.gates.Lookup(ability)
	if !ok {
		return Decision{Reason: string(reasonNoRule)}
	}
	if gate.Predicate(p) {
		return Decision{Allowed: true, Reason: string(reasonPermission)}
	}
	return Decision{Reason: string(reasonDenied)}
}

// ErrUnknownTokens is returned by Validate when rules reference tokens that
// are not part of the permission catalog.
var ErrUnknownTokens = errors.New("authz: unknown permission tokens")

// Validate checks every token referenced by a policy rule or gate against
// the known permission catalog.
func (e *Engine) Validate(known []string) error {
	catalog := toSet(known)
	missing := make(map[string][]string)
	for resource, policy := range e.policies {
		for action, rule := range policy.Rules {
			if rule.token == "" {
				continue
			}
			if _, ok := catalog[rule.token]; !ok {
				missing[rule.token] = append(missing[rule.token], string(resource)+"."+string(action))
			}
		}
	}
	if e.gates != nil {
		for _, gate := range e.gates.gates {
			if gate.Token == "" {
				continue
			}
			if _, ok := catalog[gate.Token]; !ok {
				missing[gate.Token] = append(missing[gate.Token], "gate")
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(missing))
	for token, users := range missing {
		sort.Strings(users)
		tokens = append(tokens, fmt.Sprintf("%q (%s)", token, strings.Join(users, ", ")))
	}
	sort.Strings(tokens)
	return fmt.Errorf("%w: %s", ErrUnknownTokens, strings.Join(tokens, "; "))
}

// Tokens lists every permission token the engine can consult.
func (e *Engine) Tokens() []string {
	set := make(map[string]struct{})
	for _, policy := range e.policies {
		for _, rule := range policy.Rules {
			if rule.token != "" {
				set[rule.token] = struct{}{}
			}
		}
	}
	if e.gates != nil {
		for _, gate := range e.gates.gates {
			if gate.Token != "" {
				set[gate.Token] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for token := range set {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
