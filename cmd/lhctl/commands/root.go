// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/lhctl/cmd/lhctl/handlers"
)

// Root returns the root command for the lhctl CLI.
func Root() *cobra.Command {
	g := &handlers.GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "lhctl",
		Short: "Upgrade, back up and roll back Longhorn",
		Long: `lhctl drives a Longhorn installation through inspect, backup, apply,
wait and verify, detects version conflicts between its components and
restores a previous state from a backup bundle.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &handlers.UsageError{Err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.ConfigPath, "config", "", "Path to configuration file (default ./lhctl.yaml when present)")
	flags.StringVar(&g.Kubeconfig, "kubeconfig", "", "Path to kubeconfig (default $KUBECONFIG or ~/.kube/config)")
	flags.StringVar(&g.Context, "context", "", "Kubeconfig context to use")
	flags.StringVarP(&g.Namespace, "namespace", "n", "", "Longhorn namespace (default longhorn-system)")
	flags.StringVar(&g.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.BoolVar(&g.LogJSON, "log-json", false, "Write logs as JSON")
	flags.StringVar(&g.Pushgateway, "pushgateway", "", "Prometheus Pushgateway URL for operation metrics")

	// Inspection
	cmd.AddCommand(Status(g))
	cmd.AddCommand(Conflicts(g))
	cmd.AddCommand(Volumes(g))

	// Mutation
	cmd.AddCommand(Backup(g))
	cmd.AddCommand(Upgrade(g))
	cmd.AddCommand(Rollback(g))
	cmd.AddCommand(FixConflicts(g))
	cmd.AddCommand(Wait(g))

	// Utility
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &handlers.UsageError{Err: err}
		}
		return nil
	}
}

func addYesFlag(cmd *cobra.Command, g *handlers.GlobalOptions) {
	cmd.Flags().BoolVarP(&g.AssumeYes, "yes", "y", false, "Answer yes to every confirmation")
}
