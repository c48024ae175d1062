package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/rbac"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

const defaultAdminEmail = "admin@example.com"

var (
	verboseFlag       bool
	seedPasswordFlag  string
	seedSkipUsersFlag bool
)

// keyPermissions are the tokens reported by `permissions test`.
var keyPermissions = []struct {
	token string
	label string
}{
	{"view-any User", "View Users"},
	{"create User", "Create Users"},
	{"update User", "Update Users"},
	{"delete User", "Delete Users"},
	{"view-any Post", "View Posts"},
	{"create Post", "Create Posts"},
	{"publish Post", "Publish Posts"},
	{"view-any Role", "View Roles"},
	{"create Role", "Create Roles"},
	{shared.PermFooterManage, "Manage Footer Settings"},
	{shared.PermActivityLogView, "View Activity Logs"},
	{shared.PermJobsMonitor, "Monitor Jobs"},
}

var keyGates = []struct {
	ability string
	label   string
}{
	{shared.PermSettingsView, "Access Settings"},
	{shared.PermFooterManage, "Manage Footer"},
	{shared.PermSystemView, "View System Info"},
	{shared.PermHealthView, "View Health Status"},
	{shared.PermBackupManage, "Manage Backups"},
	{shared.PermQueueAccess, "Access Queue Monitor"},
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Inspect and maintain roles and permissions",
}

var permissionsTestCmd = &cobra.Command{
	Use:   "test [user-id]",
	Short: "Report the roles, key permissions and gates of a user",
	Long: `Report how the authorization engine sees a user: assigned roles, a fixed set
of key permission checks, the default gates and the effective permission total.
Without a user id the seeded admin account is used.`,
	Example: `  sentinelctl permissions test
  sentinelctl permissions test 42 -v
  sentinelctl permissions test --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPermissionsTest,
}

var permissionsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply the embedded role and permission catalog",
	Long: `Idempotently create every catalog permission and role, sync role grants and
create the seed users. Seed users only get a password when --password is set.`,
	Args: cobra.NoArgs,
	RunE: runPermissionsSeed,
}

var permissionsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every policy and gate token exists in the store",
	Args:  cobra.NoArgs,
	RunE:  runPermissionsValidate,
}

func init() {
	permissionsTestCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "list every effective permission")
	permissionsSeedCmd.Flags().StringVar(&seedPasswordFlag, "password", "", "password for newly created seed users")
	permissionsSeedCmd.Flags().BoolVar(&seedSkipUsersFlag, "skip-users", false, "do not create seed users")

	permissionsCmd.AddCommand(permissionsTestCmd, permissionsSeedCmd, permissionsValidateCmd)
	rootCmd.AddCommand(permissionsCmd)
}

func runPermissionsTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	var user rbac.User
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		user, err = b.store.User(ctx, id)
		if errors.Is(err, rbac.ErrNotFound) {
			return fmt.Errorf("user with ID %d not found", id)
		}
		if err != nil {
			return err
		}
	} else {
		user, err = b.store.UserByEmail(ctx, defaultAdminEmail)
		if errors.Is(err, rbac.ErrNotFound) {
			return errors.New("default admin user not found, run: sentinelctl permissions seed")
		}
		if err != nil {
			return err
		}
	}

	principal, err := rbac.StoreLoader{Store: b.store}.LoadPrincipal(ctx, user.ID)
	if err != nil {
		return err
	}
	roles, err := b.store.ListRoles(ctx)
	if err != nil {
		return err
	}
	perms, err := b.store.ListPermissions(ctx)
	if err != nil {
		return err
	}

	printPermissionReport(cmd.OutOrStdout(), b.engine, user, principal, len(roles), len(perms))
	return nil
}

func printPermissionReport(out io.Writer, engine *authz.Engine, user rbac.User, p authz.Principal, roleCount, permCount int) {
	fmt.Fprintf(out, "Testing permissions for: %s (%s)\n\n", user.Name, user.Email)

	fmt.Fprintln(out, "=== User Information ===")
	fmt.Fprintf(out, "ID: %d\nName: %s\nEmail: %s\n\n", user.ID, user.Name, user.Email)

	fmt.Fprintln(out, "=== Roles ===")
	if len(p.Roles) == 0 {
		fmt.Fprintln(out, "No roles assigned")
	}
	for _, role := range p.Roles {
		fmt.Fprintf(out, "✓ %s\n", role)
	}
	if engine.IsSuperUser(p) {
		fmt.Fprintf(out, "(%s bypasses every check)\n", engine.OverrideRole())
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "=== Key Permissions Test ===")
	for _, kp := range keyPermissions {
		fmt.Fprintf(out, "%s %s\n", mark(engine.CheckPermission(p, kp.token)), kp.label)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "=== Gates Test ===")
	for _, g := range keyGates {
		fmt.Fprintf(out, "%s %s\n", mark(engine.GateDecision(p, g.ability)), g.label)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "=== All User Permissions ===")
	if len(p.Permissions) == 0 {
		fmt.Fprintln(out, "No permissions assigned")
	} else {
		fmt.Fprintf(out, "Total permissions: %d\n", len(p.Permissions))
		if verboseFlag {
			for _, perm := range p.Permissions {
				fmt.Fprintf(out, "  - %s\n", perm)
			}
		} else {
			fmt.Fprintln(out, "Use -v to see all permissions")
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "=== System Overview ===")
	fmt.Fprintf(out, "Total Roles: %d\nTotal Permissions: %d\n", roleCount, permCount)
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func runPermissionsSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	opts := rbac.SeedOptions{SkipUsers: seedSkipUsersFlag}
	if seedPasswordFlag != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(seedPasswordFlag), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		opts.PasswordHash = string(hash)
	}
	result, err := rbac.Seed(ctx, b.store, b.catalog, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d permissions, %d roles, %d users\n", result.Permissions, result.Roles, result.Users)
	return nil
}

func runPermissionsValidate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	if err := rbac.ValidateEngine(ctx, b.engine, b.store); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "All %d policy and gate tokens are present\n", len(b.engine.Tokens()))
	return nil
}
