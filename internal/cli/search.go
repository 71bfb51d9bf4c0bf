package cli

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search for packages",
		Long: `Search for packages across all enabled repositories.

Packages whose name contains QUERY (case-insensitive) are listed with their
newest version. Without QUERY every available package is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runSearch(cmd, query)
		},
	}

	return cmd
}

func runSearch(cmd *cobra.Command, query string) error {
	svc, _, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	available, err := svc.AvailablePackages(cmd.Context())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	query = strings.ToLower(query)
	matches := make([]model.PackageDescriptor, 0, len(available))
	for _, pkg := range available {
		if strings.Contains(strings.ToLower(pkg.Name), query) {
			matches = append(matches, pkg)
		}
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		_, _ = fmt.Fprintf(out, "No packages found matching '%s'\n", query)
		return nil
	}

	tabWriter := newTable(out)
	_, _ = fmt.Fprintln(tabWriter, "PACKAGE NAME\tLATEST\tREPOSITORY\tDESCRIPTION")
	for _, pkg := range matches {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\n",
			pkg.Name, latestVersion(pkg), pkg.RepositoryName, truncate(pkg.Description, MaxDescriptionLength))
	}
	if err := tabWriter.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "\nFound %d package(s)\n", len(matches))
	return nil
}

// latestVersion returns the highest parseable version of pkg.
func latestVersion(pkg model.PackageDescriptor) string {
	var best *version.Version
	latest := ""
	for i := range pkg.Versions {
		parsed := pkg.Versions[i].GetVersion()
		if parsed == nil {
			continue
		}
		if best == nil || parsed.GreaterThan(best) {
			best = parsed
			latest = pkg.Versions[i].Version
		}
	}
	return latest
}
