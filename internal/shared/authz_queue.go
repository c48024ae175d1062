package shared

// Queue monitor permissions. These are system-wide grants and never overlap
// with the per-job tokens such as "view Job".
const (
	PermQueueAccess          = "access Queue Monitor"
	PermQueueStatistics      = "view Queue Statistics"
	PermQueuePerformance     = "view Queue Performance"
	PermQueueJobDetails      = "view Job Details"
	PermQueueJobPayload      = "view Job Payload"
	PermQueueRetry           = "retry Jobs"
	PermQueueDelete          = "delete Jobs"
	PermQueueClear           = "clear Queues"
	PermQueueWorkers         = "manage Queue Workers"
	PermQueueControl         = "control Queues"
	PermQueuePrune           = "prune Jobs"
	PermQueueExport          = "export Queue Data"
	PermQueueConfigView      = "view Queue Configuration"
	PermQueueConfigUpdate    = "update Queue Configuration"
	PermQueueLogs            = "view Queue Logs"
	PermQueueFailedDetails   = "view Failed Job Details"
	PermQueueBatch           = "batch Process Jobs"
	PermQueueForceDelete     = "force-delete Jobs"
	PermQueueCancel          = "cancel Jobs"
	PermQueueSensitiveDetail = "view Sensitive Job Data"
)

// QueueScopes lists all queue monitor permissions.
func QueueScopes() []string {
	return []string{
		PermQueueAccess,
		PermQueueStatistics,
		PermQueuePerformance,
		PermQueueJobDetails,
		PermQueueJobPayload,
		PermQueueRetry,
		PermQueueDelete,
		PermQueueClear,
		PermQueueWorkers,
		PermQueueControl,
		PermQueuePrune,
		PermQueueExport,
		PermQueueConfigView,
		PermQueueConfigUpdate,
		PermQueueLogs,
		PermQueueFailedDetails,
		PermQueueBatch,
		PermQueueForceDelete,
		PermQueueCancel,
		PermQueueSensitiveDetail,
	}
}
