package cli

import (
	"fmt"

	"github.com/glorpus-work/plugd/pkg/database"
	"github.com/spf13/cobra"
)

// NewInstalledCmd creates the installed command.
func NewInstalledCmd() *cobra.Command {
	var nameFilter string

	cmd := &cobra.Command{
		Use:   "installed",
		Short: "List installed packages",
		Long: `List all installed packages from the local database.

Use --name to filter packages by name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstalled(cmd, nameFilter)
		},
	}

	cmd.Flags().StringVar(&nameFilter, "name", "", "Filter packages by name (partial match)")

	return cmd
}

func runInstalled(cmd *cobra.Command, nameFilter string) error {
	store, err := loadStore()
	if err != nil {
		return err
	}

	db, err := database.Open(absPath(store.Config().GetDatabasePath()))
	if err != nil {
		return fmt.Errorf("failed to load installed database: %w", err)
	}

	installed := db.List(nameFilter)
	out := cmd.OutOrStdout()
	if len(installed) == 0 {
		_, _ = fmt.Fprintln(out, "No packages installed")
		return nil
	}

	tabWriter := newTable(out)
	_, _ = fmt.Fprintln(tabWriter, "PACKAGE NAME\tVERSION\tINSTALLED\tPATH")
	for _, pkg := range installed {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\n",
			pkg.Name, pkg.Version, pkg.InstalledAt.Format("2006-01-02 15:04"), pkg.Path)
	}
	return tabWriter.Flush()
}
