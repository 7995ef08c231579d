package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/actions"
	"stageline.dev/stageline/internal/cli/helpers"
	"stageline.dev/stageline/internal/output"
	"stageline.dev/stageline/internal/runtime"
	"stageline.dev/stageline/internal/store"
)

// newMessageCmd builds the defer, reopen and abandon commands, which differ only in the operation
func newMessageCmd(use, short string, op func(number int, message string) actions.Operation) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   use + " <change>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			return helpers.Execute(cmd, op(number, message))
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message recorded on the change")
	return cmd
}

// newDeferCmd creates the defer command
func newDeferCmd() *cobra.Command {
	return newMessageCmd("defer", "Park a NEW or ABANDONED change as DEFERRED",
		func(n int, m string) actions.Operation { return actions.Defer{Change: n, Message: m} })
}

// newReopenCmd creates the reopen command
func newReopenCmd() *cobra.Command {
	return newMessageCmd("reopen", "Return a DEFERRED change to NEW",
		func(n int, m string) actions.Operation { return actions.Reopen{Change: n, Message: m} })
}

// newAbandonCmd creates the abandon command
func newAbandonCmd() *cobra.Command {
	return newMessageCmd("abandon", "Abandon a DEFERRED change",
		func(n int, m string) actions.Operation { return actions.Abandon{Change: n, Message: m} })
}

// newChangeStatusCmd creates the change-status command
func newChangeStatusCmd() *cobra.Command {
	var opts actions.ChangeStatus

	cmd := &cobra.Command{
		Use:   "change-status <change>",
		Short: "Force a change from one status to another",
		Long: `Force a change from one status to another.

Only transitions the status machine allows are accepted and no refs are
touched. Use this to repair a change left behind by an interrupted
operation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			op := opts
			op.Change = number
			return helpers.Execute(cmd, op)
		},
	}

	statuses := make([]string, 0, len(store.AllStatuses))
	for _, s := range store.AllStatuses {
		statuses = append(statuses, strings.ToLower(string(s)))
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "Current status: "+strings.Join(statuses, "|"))
	cmd.Flags().StringVar(&opts.To, "to", "", "New status: "+strings.Join(statuses, "|"))
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "Message recorded on the change")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	for _, name := range []string{"from", "to"} {
		_ = cmd.RegisterFlagCompletionFunc(name, cobra.FixedCompletions(statuses, cobra.ShellCompDirectiveNoFileComp))
	}
	return cmd
}

// newChangeCmd creates the change command group
func newChangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Register, review and inspect changes",
	}
	cmd.AddCommand(newChangeImportCmd(), newChangeReviewCmd(), newChangeShowCmd())
	return cmd
}

func newChangeImportCmd() *cobra.Command {
	var opts actions.ImportChange

	cmd := &cobra.Command{
		Use:   "import <commit>",
		Short: "Register a commit as a change, or as a new patch set of one",
		Long: `Register a commit as a change, or as a new patch set of one.

The commit's Change-Id footer identifies the change on the branch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := opts
			op.Revision = args[0]
			return helpers.Execute(cmd, op)
		},
	}

	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "Destination branch")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.RegisterFlagCompletionFunc("branch", helpers.CompleteBranches)
	return cmd
}

func newChangeReviewCmd() *cobra.Command {
	var opts actions.Review

	cmd := &cobra.Command{
		Use:   "review <change>",
		Short: "Vote on a change's current patch set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			op := opts
			op.Change = number
			return helpers.Execute(cmd, op)
		},
	}

	cmd.Flags().StringVarP(&opts.Label, "label", "l", "Code-Review", "Review label")
	cmd.Flags().IntVarP(&opts.Value, "value", "v", 2, "Vote value")
	return cmd
}

func newChangeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <change>",
		Short: "Show a change's status, patch sets and messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseChange(args[0])
			if err != nil {
				return err
			}
			return helpers.Run(cmd, func(rt *runtime.Context) error {
				c, err := rt.Engine.Change(cmd.Context(), number)
				if err != nil {
					return err
				}
				if asJSON, _ := cmd.Flags().GetBool(helpers.FlagJSON); asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(c)
				}
				renderChange(rt, c)
				return nil
			})
		},
	}
}

func renderChange(rt *runtime.Context, c *store.Change) {
	status := string(c.Status)
	if rt.Splog.Decorated() {
		status = output.ColorStatus(status)
	}
	rt.Splog.Info("Change %d %s", c.Number, status)
	rt.Splog.Info("Branch:  %s", c.Branch)
	rt.Splog.Info("Subject: %s", c.Subject)
	rt.Splog.Info("Owner:   %s", c.Owner)
	if c.Build != "" {
		rt.Splog.Info("Build:   %s", c.Build)
	}
	for _, ps := range c.PatchSets {
		marker := " "
		if ps.Number == c.CurrentPatchSet {
			marker = "*"
		}
		rt.Splog.Info("%s %d %s", marker, ps.Number, ps.Commit)
	}
	for _, a := range c.ApprovalsFor(c.CurrentPatchSet) {
		rt.Splog.Info("  %s%+d by %s", a.Label, a.Value, a.Account)
	}
	for _, m := range c.Messages {
		rt.Splog.Info("%s  %s", m.Date.Format("2006-01-02 15:04"), firstLine(m.Text))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
