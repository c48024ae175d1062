package authz

import "github.com/odyssey-erp/sentinel/internal/shared"

// DefaultPolicies returns the policy table for every admin resource.
func DefaultPolicies() []Policy {
	return []Policy{
		NewPolicy(ResourceUser).Derive(StandardActions()...).Derive(ActionImpersonate),
		NewPolicy(ResourceRole).Derive(StandardActions()...),
		NewPolicy(ResourcePermission).Derive(StandardActions()...),
		postPolicy(),
		NewPolicy(ResourceCategory).Derive(StandardActions()...),
		NewPolicy(ResourceAuthor).Derive(StandardActions()...),
		activityPolicy(),
		NewPolicy(ResourceJob).
			Derive(StandardActions()...).
			Derive(ActionRetry, ActionRetryAny, ActionCancel, ActionCancelAny),
		pagePolicy(),
		queueMonitorPolicy(),
	}
}

func postPolicy() Policy {
	return NewPolicy(ResourcePost).
		Derive(StandardActions()...).
		Derive(ActionPublish, ActionUnpublish).
		With(ActionUpdate, OwnerOrPermission(Token(ActionUpdate, ResourcePost)))
}

// Activity records are written by the system only.
func activityPolicy() Policy {
	return NewPolicy(ResourceActivity).
		Derive(
			ActionViewAny,
			ActionView,
			ActionDelete,
			ActionDeleteAny,
			ActionRestore,
			ActionRestoreAny,
			ActionForceDelete,
			ActionForceDeleteAny,
		).
		With(ActionCreate, Deny()).
		With(ActionUpdate, Deny()).
		With(ActionReplicate, Deny()).
		With(ActionReorder, Deny())
}

func pagePolicy() Policy {
	return NewPolicy(ResourcePage).
		With(ActionViewSettings, Permission(shared.PermSettingsView)).
		With(ActionManageFooter, Permission(shared.PermFooterManage)).
		With(ActionViewSystem, Permission(shared.PermSystemView)).
		With(ActionViewHealth, Permission(shared.PermHealthView)).
		With(ActionManageBackups, Permission(shared.PermBackupManage)).
		With(ActionMonitorJobs, Permission(shared.PermJobsMonitor)).
		With(ActionViewActivityLog, Permission(shared.PermActivityLogView))
}

func queueMonitorPolicy() Policy {
	return NewPolicy(ResourceQueueMonitor).
		With(ActionViewAny, Permission(shared.PermQueueAccess)).
		With(ActionViewStatistics, Permission(shared.PermQueueStatistics)).
		With(ActionViewPerformance, Permission(shared.PermQueuePerformance)).
		With(ActionViewJobDetails, Permission(shared.PermQueueJobDetails)).
		With(ActionViewJobPayload, Permission(shared.PermQueueJobPayload)).
		With(ActionRetryJobs, Permission(shared.PermQueueRetry)).
		With(ActionDeleteJobs, Permission(shared.PermQueueDelete)).
		With(ActionClearQueues, Permission(shared.PermQueueClear)).
		With(ActionManageWorkers, Permission(shared.PermQueueWorkers)).
		With(ActionControlQueues, Permission(shared.PermQueueControl)).
		With(ActionPruneJobs, Permission(shared.PermQueuePrune)).
		With(ActionExportData, Permission(shared.PermQueueExport)).
		With(ActionViewConfiguration, Permission(shared.PermQueueConfigView)).
		With(ActionUpdateConfiguration, Permission(shared.PermQueueConfigUpdate)).
		With(ActionViewLogs, Permission(shared.PermQueueLogs)).
		With(ActionViewFailedJobDetails, Permission(shared.PermQueueFailedDetails)).
		With(ActionBatchProcess, Permission(shared.PermQueueBatch)).
		With(ActionForceDeleteJobs, Permission(shared.PermQueueForceDelete)).
		With(ActionCancelJobs, Permission(shared.PermQueueCancel)).
		With(ActionViewSensitiveData, Permission(shared.PermQueueSensitiveDetail))
}
