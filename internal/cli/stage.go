package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/actions"
	"stageline.dev/stageline/internal/cli/helpers"
)

// newStageCmd creates the stage command
func newStageCmd() *cobra.Command {
	var revision string

	cmd := &cobra.Command{
		Use:   "stage <change>",
		Short: "Stage a NEW change onto its branch's staging line",
		Long: `Stage a NEW change onto its branch's staging line.

The change's current patch set is cherry-picked onto refs/staging/<branch>
(created from the branch tip when missing) and the change becomes STAGED.
--revision names the patch set you reviewed; staging fails if it is no
longer current.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			return helpers.Execute(cmd, actions.Stage{Change: number, Revision: revision})
		},
	}

	cmd.Flags().StringVarP(&revision, "revision", "r", "", "Patch set number or commit that must be current")
	return cmd
}

// newUnstageCmd creates the unstage command
func newUnstageCmd() *cobra.Command {
	var revision string

	cmd := &cobra.Command{
		Use:   "unstage <change>",
		Short: "Take a STAGED change back to NEW and rebuild the staging line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			return helpers.Execute(cmd, actions.Unstage{Change: number, Revision: revision})
		},
	}

	cmd.Flags().StringVarP(&revision, "revision", "r", "", "Patch set number or commit that must be current")
	return cmd
}

func parseChange(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid change number %q", arg)
	}
	return n, nil
}
