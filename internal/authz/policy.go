package authz

type ruleKind int

const (
	rulePermission ruleKind = iota
	ruleDeny
	ruleOwnerOrPermission
)

// Rule decides a single policy action.
type Rule struct {
	kind  ruleKind
	token string
}

// Permission allows the action when the principal holds token.
func Permission(token string) Rule {
	return Rule{kind: rulePermission, token: token}
}

// Deny refuses the action for every principal except the override role.
func Deny() Rule {
	return Rule{kind: ruleDeny}
}

// OwnerOrPermission allows the action when the resource is owned by the
// principal, otherwise when the principal holds token.
func OwnerOrPermission(token string) Rule {
	return Rule{kind: ruleOwnerOrPermission, token: token}
}

// Token returns the permission token consulted by the rule, if any.
func (r Rule) Token() string {
	return r.token
}

// Policy maps the actions of one resource type to rules. Actions without a
// rule are denied.
type Policy struct {
	Resource ResourceType
	Rules    map[Action]Rule
}

// NewPolicy starts an empty policy for resource.
func NewPolicy(resource ResourceType) Policy {
	return Policy{Resource: resource, Rules: make(map[Action]Rule)}
}

// With sets the rule for action and returns the policy for chaining.
func (p Policy) With(action Action, rule Rule) Policy {
	p.Rules[action] = rule
	return p
}

// Derive adds a permission rule per action with the token derived from the
// action and the policy resource type.
func (p Policy) Derive(actions ...Action) Policy {
	for _, action := range actions {
		p.Rules[action] = Permission(Token(action, p.Resource))
	}
	return p
}

// StandardActions are the model actions every resource policy answers.
func StandardActions() []Action {
	return []Action{
		ActionViewAny,
		ActionView,
		ActionCreate,
		ActionUpdate,
		ActionDelete,
		ActionDeleteAny,
		ActionRestore,
		ActionRestoreAny,
		ActionReplicate,
		ActionReorder,
		ActionForceDelete,
		ActionForceDeleteAny,
	}
}

type decisionReason string

const (
	reasonOverride   decisionReason = "override"
	reasonPermission decisionReason = "permission"
	reasonOwner      decisionReason = "owner"
	reasonStructural decisionReason = "structural"
	reasonNoRule     decisionReason = "no_rule"
	reasonDenied     decisionReason = "denied"
)

func (r Rule) evaluate(p Principal, resource any) (bool, decisionReason) {
	switch r.kind {
	case rulePermission:
		if p.HasPermission(r.token) {
			return true, reasonPermission
		}
		return false, reasonDenied
	case ruleOwnerOrPermission:
		if owned, ok := resource.(Owned); ok && p.Authenticated() {
			if owner := owned.OwnerID(); owner != 0 && owner == p.ID {
				return true, reasonOwner
			}
		}
		if p.HasPermission(r.token) {
			return true, reasonPermission
		}
		return false, reasonDenied
	default:
		return false, reasonStructural
	}
}
