package cli

import (
	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/actions"
	"stageline.dev/stageline/internal/cli/helpers"
)

// newNewBuildCmd creates the new-build command
func newNewBuildCmd() *cobra.Command {
	var opts actions.NewBuild

	cmd := &cobra.Command{
		Use:   "new-build",
		Short: "Snapshot the staging line as refs/builds/<id> for CI",
		Long: `Snapshot the staging line as refs/builds/<id> for CI.

Every STAGED change on the line becomes INTEGRATING. Changes already
INTEGRATING in an earlier build are carried into the new one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Execute(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "Destination branch")
	cmd.Flags().StringVarP(&opts.Build, "build-id", "i", "", "Build identifier")
	cmd.Flags().StringVarP(&opts.Staging, "staging", "s", "", "Staging ref to snapshot (default staging/<branch>)")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.MarkFlagRequired("build-id")
	_ = cmd.RegisterFlagCompletionFunc("branch", helpers.CompleteBranches)
	return cmd
}

// newApproveCmd creates the approve command
func newApproveCmd() *cobra.Command {
	var opts actions.ApproveBuild

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Apply a CI result to a build",
		Long: `Apply a CI result to a build.

With --result pass the branch is fast-forwarded to the build and its
changes become MERGED. If the branch moved since the build was cut the
approval turns into a rejection. With --result fail the build's changes
go back to NEW. The staging line is rebuilt either way.

Use -m - to read the message from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			message, err := helpers.ReadMessage(cmd, opts.Message)
			if err != nil {
				return err
			}
			op := opts
			op.Message = message
			return helpers.Execute(cmd, op)
		},
	}

	cmd.Flags().StringVarP(&opts.Build, "build-id", "i", "", "Build identifier")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "Destination branch")
	cmd.Flags().StringVarP(&opts.Result, "result", "r", "", "CI result: pass or fail")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "Message added to every change, - for stdin")
	_ = cmd.MarkFlagRequired("build-id")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.MarkFlagRequired("result")
	_ = cmd.RegisterFlagCompletionFunc("branch", helpers.CompleteBranches)
	_ = cmd.RegisterFlagCompletionFunc("result", cobra.FixedCompletions(
		[]string{actions.ResultPass, actions.ResultFail}, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

// newRejectCmd creates the reject-build command
func newRejectCmd() *cobra.Command {
	var opts actions.RejectBuild

	cmd := &cobra.Command{
		Use:   "reject-build",
		Short: "Send a build's open changes back to NEW without rebuilding staging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			message, err := helpers.ReadMessage(cmd, opts.Message)
			if err != nil {
				return err
			}
			op := opts
			op.Message = message
			return helpers.Execute(cmd, op)
		},
	}

	cmd.Flags().StringVarP(&opts.Build, "build-id", "i", "", "Build identifier")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "Destination branch")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "Message added to every change, - for stdin")
	_ = cmd.MarkFlagRequired("build-id")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}
