// Package cli implements the stageline command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/cli/helpers"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stageline",
		Short: "Stageline runs staged integration of reviewed changes into git branches",
		Long: `Stageline runs staged integration of reviewed changes into git branches.

Approved changes are staged onto refs/staging/<branch>, snapshotted as
refs/builds/<id> for CI, and fast-forwarded into refs/heads/<branch> when
the build passes. A failed build sends its changes back to NEW.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringP(helpers.FlagDir, "C", "", "Run as if started in this directory")
	rootCmd.PersistentFlags().String(helpers.FlagConfig, "", "Path to stageline.yaml (default <git-dir>/stageline.yaml)")
	rootCmd.PersistentFlags().Bool(helpers.FlagJSON, false, "Print results as JSON")

	rootCmd.AddCommand(
		newStageCmd(),
		newUnstageCmd(),
		newNewBuildCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newRebuildStagingCmd(),
		newListStagingCmd(),
		newDeferCmd(),
		newReopenCmd(),
		newAbandonCmd(),
		newChangeStatusCmd(),
		newChangeCmd(),
		newConfigCmd(),
		newServeCmd(),
	)

	return rootCmd
}
