package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stageline.dev/stageline/internal/cli/helpers"
	"stageline.dev/stageline/internal/config"
	"stageline.dev/stageline/internal/git"
)

// newConfigCmd creates the config command group
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the stageline configuration",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to <git-dir>/stageline.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			explicit, _ := cmd.Flags().GetString(helpers.FlagConfig)
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(explicit, repo.GitDir())
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
}

func openRepo(cmd *cobra.Command) (*git.Repo, error) {
	dir, _ := cmd.Flags().GetString(helpers.FlagDir)
	if dir == "" {
		dir = "."
	}
	repo, err := git.Open(cmd.Context(), dir)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return repo, nil
}

func configPath(cmd *cobra.Command) (string, error) {
	if explicit, _ := cmd.Flags().GetString(helpers.FlagConfig); explicit != "" {
		return explicit, nil
	}
	repo, err := openRepo(cmd)
	if err != nil {
		return "", err
	}
	return config.Path(repo.GitDir()), nil
}
