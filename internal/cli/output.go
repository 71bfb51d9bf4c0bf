package cli

import (
	"io"
	"strings"
	"text/tabwriter"
)

const (
	// MaxDescriptionLength caps descriptions and changelogs in table output.
	MaxDescriptionLength = 50
	// TabWidth is the padding between table columns.
	TabWidth = 2

	progressBarWidth = 40
)

// newTable returns a tabwriter for the column layout shared by all list commands.
// Callers must Flush it.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
}

// truncate collapses whitespace and shortens s to at most limit runes.
func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
