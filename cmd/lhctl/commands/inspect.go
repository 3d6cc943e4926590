package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/lhctl/cmd/lhctl/handlers"
)

// Status returns the command printing versions, conflicts and readiness.
func Status(g *handlers.GlobalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Longhorn versions, conflicts and pod readiness",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), *g, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// Conflicts returns the command checking for version conflicts.
//
// It exits with status 1 when the settings, manager and CSI plugin
// disagree, so it can be used as a scripted check.
func Conflicts(g *handlers.GlobalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check Longhorn components for version conflicts",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Conflicts(cmd.Context(), *g, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// Volumes returns the command listing Longhorn volumes.
func Volumes(g *handlers.GlobalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "volumes",
		Short: "List Longhorn volumes with their claims and workloads",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Volumes(cmd.Context(), *g, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
