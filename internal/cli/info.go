package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInfoCmd creates the info command.
func NewInfoCmd() *cobra.Command {
	var guid string

	cmd := &cobra.Command{
		Use:   "info NAME",
		Short: "Show package details",
		Long:  "Show the details and published versions of an available package",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" && guid == "" {
				return fmt.Errorf("a package name or --guid is required")
			}
			return runInfo(cmd, name, guid)
		},
	}

	cmd.Flags().StringVar(&guid, "guid", "", "Look the package up by its assembly guid")

	return cmd
}

func runInfo(cmd *cobra.Command, name, guid string) error {
	svc, _, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	pkg, err := svc.GetPackage(cmd.Context(), name, guid)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Name:        %s\n", pkg.Name)
	if pkg.ID != "" {
		_, _ = fmt.Fprintf(out, "GUID:        %s\n", pkg.ID)
	}
	if pkg.Owner != "" {
		_, _ = fmt.Fprintf(out, "Owner:       %s\n", pkg.Owner)
	}
	if pkg.Category != "" {
		_, _ = fmt.Fprintf(out, "Category:    %s\n", pkg.Category)
	}
	_, _ = fmt.Fprintf(out, "Repository:  %s (%s)\n", pkg.RepositoryName, pkg.RepositoryURL)
	if pkg.Description != "" {
		_, _ = fmt.Fprintf(out, "Description: %s\n", pkg.Description)
	}

	_, _ = fmt.Fprintln(out, "\nVersions:")
	tabWriter := newTable(out)
	_, _ = fmt.Fprintln(tabWriter, "  VERSION\tTARGET ABI\tOS/ARCH\tCHANGELOG")
	for _, v := range pkg.Versions {
		osArch := "any"
		if v.OS != "" || v.Arch != "" {
			osArch = fmt.Sprintf("%s/%s", orAny(v.OS), orAny(v.Arch))
		}
		_, _ = fmt.Fprintf(tabWriter, "  %s\t%s\t%s\t%s\n", v.Version, orAny(v.TargetABI), osArch, truncate(v.Changelog, MaxDescriptionLength))
	}
	return tabWriter.Flush()
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}
