// ABOUTME: Exports a board snapshot as a deterministic Markdown document.
// ABOUTME: Columns in display order, notes in visual order, pool notes last.
package export

import (
	"fmt"
	"strings"

	"github.com/2389-research/huddle/core"
)

// ExportMarkdown renders a board snapshot as a Markdown string with
// deterministic ordering: columns by display position, notes within each
// column by their order key, and unassigned notes in a trailing section.
func ExportMarkdown(snap core.Snapshot) string {
	var out strings.Builder

	fmt.Fprintf(&out, "# %s\n", snap.Board.Title)
	fmt.Fprintln(&out)
	fmt.Fprintf(&out, "Created by %s on %s.\n", snap.Board.CreatedBy, snap.Board.CreatedAt.Format("2006-01-02"))

	state := core.StateFromSnapshot(snap)

	for _, col := range state.OrderedColumns() {
		fmt.Fprintln(&out)
		fmt.Fprintf(&out, "## %s\n", col.Title)
		fmt.Fprintln(&out)

		notes := state.ContainerNotes(&col.ColumnID)
		if len(notes) == 0 {
			fmt.Fprintln(&out, "_No notes._")
			continue
		}
		for _, n := range notes {
			writeNoteItem(&out, n)
		}
	}

	pool := state.ContainerNotes(nil)
	if len(pool) > 0 {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "## Unassigned")
		fmt.Fprintln(&out)
		for _, n := range pool {
			writeNoteItem(&out, n)
		}
	}

	return out.String()
}

// writeNoteItem writes one note as a list item with its attribution.
// Embedded newlines would split the bullet, so content is flattened to one
// line.
func writeNoteItem(out *strings.Builder, n core.Note) {
	content := strings.Join(strings.Fields(n.Content), " ")
	fmt.Fprintf(out, "- %s (%s)\n", content, n.Author)
	if len(n.EditedBy) > 0 {
		fmt.Fprintf(out, "  - edited by %s\n", strings.Join(n.EditedBy, ", "))
	}
}
