package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/actions"
	"stageline.dev/stageline/internal/cli/helpers"
	"stageline.dev/stageline/internal/output"
	"stageline.dev/stageline/internal/runtime"
)

// newRebuildStagingCmd creates the rebuild-staging command
func newRebuildStagingCmd() *cobra.Command {
	var opts actions.RebuildStaging

	cmd := &cobra.Command{
		Use:   "rebuild-staging",
		Short: "Recompute the staging line from the branch tip",
		Long: `Recompute the staging line from the branch tip.

INTEGRATING changes are re-applied first, then STAGED ones in their
current order. A conflicting change and every change after it go back
to NEW.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Execute(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "Destination branch")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.RegisterFlagCompletionFunc("branch", helpers.CompleteBranches)
	return cmd
}

// newListStagingCmd creates the list-staging command
func newListStagingCmd() *cobra.Command {
	var opts actions.ListStaging

	cmd := &cobra.Command{
		Use:   "list-staging",
		Short: "List the commits of a staging line",
		Long: `List the commits reachable from --ref but not from --destination,
oldest first, one "<commit> <patchset> <subject>" line each.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON, _ := cmd.Flags().GetBool(helpers.FlagJSON); asJSON {
				return helpers.Execute(cmd, opts)
			}
			return helpers.Run(cmd, func(rt *runtime.Context) error {
				res, err := actions.Execute(cmd.Context(), rt, opts)
				if err != nil {
					return err
				}
				for _, line := range res.Staging {
					patchSet := "-"
					if line.PatchSet > 0 {
						patchSet = fmt.Sprint(line.PatchSet)
					}
					commit := line.Commit
					if rt.Splog.Decorated() {
						commit = output.ColorYellow(commit)
					}
					rt.Splog.Page(fmt.Sprintf("%s %s %s\n", commit, patchSet, line.Subject))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Ref, "ref", "", "Staging or build ref to list")
	cmd.Flags().StringVarP(&opts.Destination, "destination", "d", "", "Branch the line is based on")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("destination")
	return cmd
}
