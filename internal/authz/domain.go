// Package authz decides whether a principal may perform an action. Every
// decision is a pure function of an immutable Principal snapshot, the action
// and, for policies, an optional resource instance.
package authz

import "strings"

// Action names a policy action such as "view-any" or "force-delete".
type Action string

// ResourceType names the kind of resource a policy governs.
type ResourceType string

// Standard model actions.
const (
	ActionViewAny        Action = "view-any"
	ActionView           Action = "view"
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionDeleteAny      Action = "delete-any"
	ActionRestore        Action = "restore"
	ActionRestoreAny     Action = "restore-any"
	ActionReplicate      Action = "replicate"
	ActionReorder        Action = "reorder"
	ActionForceDelete    Action = "force-delete"
	ActionForceDeleteAny Action = "force-delete-any"
)

// Resource specific actions.
const (
	ActionImpersonate Action = "impersonate"
	ActionPublish     Action = "publish"
	ActionUnpublish   Action = "unpublish"
	ActionRetry       Action = "retry"
	ActionRetryAny    Action = "retry-any"
	ActionCancel      Action = "cancel"
	ActionCancelAny   Action = "cancel-any"
)

// Settings page actions.
const (
	ActionViewSettings    Action = "view-settings"
	ActionManageFooter    Action = "manage-footer"
	ActionViewSystem      Action = "view-system"
	ActionViewHealth      Action = "view-health"
	ActionManageBackups   Action = "manage-backups"
	ActionMonitorJobs     Action = "monitor-jobs"
	ActionViewActivityLog Action = "view-activity-log"
)

// Queue monitor actions.
const (
	ActionViewStatistics       Action = "view-statistics"
	ActionViewPerformance      Action = "view-performance"
	ActionViewJobDetails       Action = "view-job-details"
	ActionViewJobPayload       Action = "view-job-payload"
	ActionRetryJobs            Action = "retry-jobs"
	ActionDeleteJobs           Action = "delete-jobs"
	ActionClearQueues          Action = "clear-queues"
	ActionManageWorkers        Action = "manage-workers"
	ActionControlQueues        Action = "control-queues"
	ActionPruneJobs            Action = "prune-jobs"
	ActionExportData           Action = "export-data"
	ActionViewConfiguration    Action = "view-configuration"
	ActionUpdateConfiguration  Action = "update-configuration"
	ActionViewLogs             Action = "view-logs"
	ActionViewFailedJobDetails Action = "view-failed-job-details"
	ActionBatchProcess         Action = "batch-process"
	ActionForceDeleteJobs      Action = "force-delete-jobs"
	ActionCancelJobs           Action = "cancel-jobs"
	ActionViewSensitiveData    Action = "view-sensitive-data"
)

// Resource types with registered policies.
const (
	ResourceUser         ResourceType = "User"
	ResourceRole         ResourceType = "Role"
	ResourcePermission   ResourceType = "Permission"
	ResourcePost         ResourceType = "Post"
	ResourceCategory     ResourceType = "Category"
	ResourceAuthor       ResourceType = "Author"
	ResourceActivity     ResourceType = "Activity"
	ResourceJob          ResourceType = "Job"
	ResourcePage         ResourceType = "Page"
	ResourceQueueMonitor ResourceType = "QueueMonitor"
)

// Token derives the permission token for an action on a resource type,
// e.g. Token(ActionDeleteAny, ResourcePost) == "delete-any Post".
func Token(action Action, resource ResourceType) string {
	return string(action) + " " + string(resource)
}

// Owned is implemented by resources that reference an owning principal.
type Owned interface {
	OwnerID() int64
}

// Principal is an immutable snapshot of an authenticated identity with its
// roles and effective permissions.
type Principal struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`

	roleSet map[string]struct{}
	permSet map[string]struct{}
}

// NewPrincipal builds a principal. Permissions is the effective set, i.e.
// the union of the role permissions and the direct grants.
func NewPrincipal(id int64, name, email string, roles, permissions []string) Principal {
	p := Principal{
		ID:          id,
		Name:        name,
		Email:       email,
		Roles:       dedupe(roles),
		Permissions: dedupe(permissions),
	}
	p.roleSet = toSet(p.Roles)
	p.permSet = toSet(p.Permissions)
	return p
}

// Index rebuilds the lookup sets, e.g. after decoding from JSON.
func (p Principal) Index() Principal {
	return NewPrincipal(p.ID, p.Name, p.Email, p.Roles, p.Permissions)
}

// Authenticated reports whether the snapshot identifies a user.
func (p Principal) Authenticated() bool {
	return p.ID > 0
}

// HasRole reports whether the principal holds the named role.
func (p Principal) HasRole(role string) bool {
	return contains(p.roleSet, p.Roles, strings.TrimSpace(role))
}

// HasPermission reports whether token is in the effective permission set.
// No implication exists between tokens.
func (p Principal) HasPermission(token string) bool {
	return contains(p.permSet, p.Permissions, strings.TrimSpace(token))
}

func contains(set map[string]struct{}, list []string, value string) bool {
	if value == "" {
		return false
	}
	if set != nil {
		_, ok := set[value]
		return ok
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
