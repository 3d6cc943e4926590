package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/lhctl/cmd/lhctl/handlers"
)

// Backup returns the command exporting a backup bundle.
func Backup(g *handlers.GlobalOptions) *cobra.Command {
	var opts handlers.BackupOptions

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export Longhorn settings, volumes and workloads to a bundle",
		Long: `Export the Longhorn configuration into a backup bundle directory.

The bundle holds the settings, Longhorn storage classes, volumes, the PVCs
bound to them and the Longhorn workloads. With --upload the bundle is also
copied to the configured S3 bucket.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Backup(cmd.Context(), *g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "Bundle directory (default longhorn-backup-<timestamp> in the backup dir)")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "Upload the bundle to the configured S3 bucket")
	return cmd
}

// Upgrade returns the command upgrading Longhorn.
func Upgrade(g *handlers.GlobalOptions) *cobra.Command {
	var opts handlers.UpgradeOptions

	cmd := &cobra.Command{
		Use:   "upgrade <version>",
		Short: "Upgrade Longhorn to a release version",
		Long: `Upgrade Longhorn to the given release (vMAJOR.MINOR.PATCH).

The upgrade process:
1. Inspects the installed versions and checks for conflicts
2. Asks for confirmation (skipped with --force, or when a conflict exists)
3. Warns about volumes attached to running workloads
4. Writes a backup bundle
5. Fetches and applies the release manifest
6. Waits for the manager and CSI plugin pods and verifies the version`,
		Example: "  lhctl upgrade v1.7.3",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Version = args[0]
			return handlers.Upgrade(cmd.Context(), *g, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Skip confirmations")
	addYesFlag(cmd, g)
	return cmd
}

// Rollback returns the command restoring a backup bundle.
func Rollback(g *handlers.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <backup-dir|s3://bucket/prefix>",
		Short: "Restore Longhorn workloads and settings from a backup bundle",
		Example: `  lhctl rollback ./longhorn-backup-20250314-092653
  lhctl rollback s3://backups/longhorn/longhorn-backup-20250314-092653`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Rollback(cmd.Context(), *g, args[0])
		},
	}

	addYesFlag(cmd, g)
	return cmd
}

// FixConflicts returns the command resolving version conflicts.
func FixConflicts(g *handlers.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix-conflicts",
		Short: "Upgrade every component to the highest deployed Longhorn version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.FixConflicts(cmd.Context(), *g)
		},
	}

	addYesFlag(cmd, g)
	return cmd
}

// Wait returns the command waiting for Longhorn readiness.
func Wait(g *handlers.GlobalOptions) *cobra.Command {
	var opts handlers.WaitOptions

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the Longhorn manager and CSI plugin pods are ready",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Wait(cmd.Context(), *g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "Expected Longhorn version to verify after readiness")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Maximum time to wait (default from config, 10m)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Poll interval (default from config, 10s)")
	return cmd
}
