// Package helpers provides shared helper functions for CLI commands.
package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/actions"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/runtime"
	"stageline.dev/stageline/internal/utils"
)

// Persistent flag names shared by every command
const (
	FlagDir    = "dir"
	FlagConfig = "config"
	FlagJSON   = "json"
)

// Run is a helper that provides a runtime context to a command's execution function
func Run(cmd *cobra.Command, fn func(rt *runtime.Context) error) error {
	dir, _ := cmd.Flags().GetString(FlagDir)
	configPath, _ := cmd.Flags().GetString(FlagConfig)
	if dir == "" {
		dir = "."
	}

	rt, err := runtime.Open(cmd.Context(), runtime.Options{
		Dir:        dir,
		ConfigPath: configPath,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(rt)
}

// Execute runs op and prints its result as text or, with --json, as JSON
func Execute(cmd *cobra.Command, op actions.Operation) error {
	return Run(cmd, func(rt *runtime.Context) error {
		res, err := actions.Execute(cmd.Context(), rt, op)
		if err != nil {
			return err
		}
		return PrintResult(cmd, rt, res)
	})
}

// PrintResult writes res to the command's output
func PrintResult(cmd *cobra.Command, rt *runtime.Context, res *actions.Result) error {
	if asJSON, _ := cmd.Flags().GetBool(FlagJSON); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	rt.Splog.Info("%s", res.String())
	if res.Reason != "" {
		rt.Splog.Warn("%s", res.Reason)
	}
	if len(res.Reverted) > 0 {
		rt.Splog.Warn("Changes sent back to NEW by a conflict in %s: %s", strings.Join(res.Conflict, ", "), joinInts(res.Reverted))
	}
	if res.Warning != "" {
		rt.Splog.Warn("%s", res.Warning)
	}
	return nil
}

// ReadMessage returns message, or standard input when message is "-"
func ReadMessage(cmd *cobra.Command, message string) (string, error) {
	if message != "-" {
		return message, nil
	}
	text, err := utils.ReadInput(cmd.InOrStdin())
	if errors.Is(err, utils.ErrInteractiveInput) {
		return "", fmt.Errorf("-m - needs the message on standard input")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	return text, nil
}

// CompleteBranches is a helper for cobra.ValidArgsFunction and RegisterFlagCompletionFunc
// that returns all branch names in the repository.
func CompleteBranches(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	repo, err := git.Open(cmd.Context(), ".")
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	branches, err := repo.Runner().RunLines(cmd.Context(), "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return branches, cobra.ShellCompDirectiveNoFileComp
}

func joinInts(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
