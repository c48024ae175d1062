package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Predicate decides a gate from the principal alone.
type Predicate func(Principal) bool

// Gate is a named ability not tied to a resource type.
type Gate struct {
	Ability   string
	Token     string
	Predicate Predicate
}

// PermissionGate builds a gate that passes when the principal holds token.
func PermissionGate(token string) Gate {
	return Gate{
		Ability: token,
		Token:   token,
		Predicate: func(p Principal) bool {
			return p.HasPermission(token)
		},
	}
}

// Gates is the gate registry. It is filled once during startup and only
// read afterwards.
type Gates struct {
	gates map[string]Gate
}

// NewGates returns an empty registry.
func NewGates() *Gates {
	return &Gates{gates: make(map[string]Gate)}
}

// Define registers a gate. Abilities are unique.
func (g *Gates) Define(gate Gate) error {
	ability := strings.TrimSpace(gate.Ability)
	if ability == "" {
		return fmt.Errorf("authz: gate ability required")
	}
	if gate.Predicate == nil {
		return fmt.Errorf("authz: gate %q has no predicate", ability)
	}
	if _, exists := g.gates[ability]; exists {
		return fmt.Errorf("authz: gate %q already defined", ability)
	}
	gate.Ability = ability
	g.gates[ability] = gate
	return nil
}

// Lookup returns the gate registered for ability.
func (g *Gates) Lookup(ability string) (Gate, bool) {
	if g == nil {
		return Gate{}, false
	}
	gate, ok := g.gates[strings.TrimSpace(ability)]
	return gate, ok
}

// Abilities lists registered abilities in sorted order.
func (g *Gates) Abilities() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.gates))
	for ability := range g.gates {
		out = append(out, ability)
	}
	sort.Strings(out)
	return out
}

// DefaultGateAbilities lists the abilities checked by admin pages and the
// queue monitor.
func DefaultGateAbilities() []string {
	abilities := []string{
		shared.PermSettingsView,
		shared.PermFooterManage,
		shared.PermSystemView,
		shared.PermHealthView,
		shared.PermBackupManage,
		shared.PermActivityLogView,
	}
	return append(abilities, shared.QueueScopes()...)
}

// DefaultGates registers a permission gate per default ability.
func DefaultGates() (*Gates, error) {
	gates := NewGates()
	for _, ability := range DefaultGateAbilities() {
		if err := gates.Define(PermissionGate(ability)); err != nil {
			return nil, err
		}
	}
	return gates, nil
}
