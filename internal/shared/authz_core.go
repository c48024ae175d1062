package shared

// OverrideRole bypasses every policy and gate check.
const OverrideRole = "Super Admin"

// Seeded role names.
const (
	RoleAdmin  = "Admin"
	RoleEditor = "Editor"
	RoleAuthor = "Author"
)

// GuardWeb is the only guard roles and permissions are scoped to.
const GuardWeb = "web"

// System settings permissions.
const (
	PermSettingsView    = "view Settings"
	PermFooterManage    = "manage Footer"
	PermSystemView      = "view System"
	PermHealthView      = "view Health"
	PermBackupManage    = "manage Backup"
	PermJobsMonitor     = "monitor Jobs"
	PermActivityLogView = "view Activity Log"
)

// SystemScopes lists all system-wide settings permissions.
func SystemScopes() []string {
	return []string{
		PermSettingsView,
		PermFooterManage,
		PermSystemView,
		PermHealthView,
		PermBackupManage,
		PermJobsMonitor,
		PermActivityLogView,
	}
}
