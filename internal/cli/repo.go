package cli

import (
	"fmt"

	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/spf13/cobra"
)

// NewRepoCmd creates the repo command with subcommands.
func NewRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
		Long:  "Add, remove, list, enable and disable package repositories",
	}

	cmd.AddCommand(
		newRepoListCmd(),
		newRepoAddCmd(),
		newRepoRemoveCmd(),
		newRepoEnableCmd(true),
		newRepoEnableCmd(false),
	)

	return cmd
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured repositories",
		Long:  "List all configured package repositories in priority order",
		Args:  cobra.NoArgs,
		RunE:  runRepoList,
	}
}

func newRepoAddCmd() *cobra.Command {
	var (
		name     string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Add a repository",
		Long:  "Add a repository by the URL of its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoAdd(cmd, args[0], name, !disabled)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Repository name (defaults to the URL)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the repository without enabling it")

	return cmd
}

func newRepoRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME|URL",
		Short: "Remove a repository",
		Long:  "Remove a repository by name or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.RemoveRepository(args[0]); err != nil {
				return fmt.Errorf("failed to remove repository '%s': %w", args[0], err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed repository %s\n", args[0])
			return nil
		},
	}
}

func newRepoEnableCmd(enable bool) *cobra.Command {
	use, short := "disable NAME|URL", "Disable a repository"
	if enable {
		use, short = "enable NAME|URL", "Enable a repository"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.EnableRepository(args[0], enable); err != nil {
				return fmt.Errorf("failed to update repository '%s': %w", args[0], err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Repository %s is now %s\n", args[0], enabledLabel(enable))
			return nil
		},
	}
}

func runRepoList(cmd *cobra.Command, _ []string) error {
	store, err := loadStore()
	if err != nil {
		return err
	}

	repos := store.GetRepositories()
	if len(repos) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No repositories configured")
		return nil
	}

	tabWriter := newTable(cmd.OutOrStdout())
	_, _ = fmt.Fprintln(tabWriter, "NAME\tURL\tSTATUS")
	for _, repo := range repos {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\n", repo.Name, repo.URL, enabledLabel(repo.Enabled))
	}
	return tabWriter.Flush()
}

func runRepoAdd(cmd *cobra.Command, url, name string, enabled bool) error {
	store, err := loadStore()
	if err != nil {
		return err
	}
	if name == "" {
		name = url
	}

	if err := store.AddRepository(model.RepositoryInfo{Name: name, URL: url, Enabled: enabled}); err != nil {
		return fmt.Errorf("failed to add repository: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added repository %s (%s)\n", name, url)
	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
