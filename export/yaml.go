// ABOUTME: Exports a board snapshot as a structured YAML document.
// ABOUTME: Uses gopkg.in/yaml.v3 for serialization with deterministic ordering.
package export

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/huddle/core"
)

// YamlNote is a serializable YAML representation of a single note.
type YamlNote struct {
	ID       string   `yaml:"id"`
	Content  string   `yaml:"content"`
	Color    string   `yaml:"color,omitempty"`
	Author   string   `yaml:"author"`
	EditedBy []string `yaml:"edited_by,omitempty"`
	Order    float64  `yaml:"order"`
}

// YamlColumn is a serializable YAML representation of a column and its notes.
type YamlColumn struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Color string     `yaml:"color,omitempty"`
	Notes []YamlNote `yaml:"notes"`
}

// YamlBoard is the top-level serializable YAML representation of a board.
type YamlBoard struct {
	ID         string       `yaml:"id"`
	Title      string       `yaml:"title"`
	CreatedBy  string       `yaml:"created_by"`
	CreatedAt  string       `yaml:"created_at"`
	Columns    []YamlColumn `yaml:"columns"`
	Unassigned []YamlNote   `yaml:"unassigned"`
}

// ExportYAML exports the snapshot as structured YAML. Ordering matches the
// Markdown exporter: columns by display position, notes by order key, then
// the unassigned pool.
func ExportYAML(snap core.Snapshot) (string, error) {
	state := core.StateFromSnapshot(snap)

	columns := make([]YamlColumn, 0, len(snap.Columns))
	for _, col := range state.OrderedColumns() {
		notes := state.ContainerNotes(&col.ColumnID)
		yamlNotes := make([]YamlNote, 0, len(notes))
		for _, n := range notes {
			yamlNotes = append(yamlNotes, yamlNote(n))
		}
		columns = append(columns, YamlColumn{
			ID:    col.ColumnID.String(),
			Title: col.Title,
			Color: col.Color,
			Notes: yamlNotes,
		})
	}

	pool := state.ContainerNotes(nil)
	unassigned := make([]YamlNote, 0, len(pool))
	for _, n := range pool {
		unassigned = append(unassigned, yamlNote(n))
	}

	doc := YamlBoard{
		ID:         snap.Board.BoardID.String(),
		Title:      snap.Board.Title,
		CreatedBy:  snap.Board.CreatedBy,
		CreatedAt:  snap.Board.CreatedAt.Format(time.RFC3339),
		Columns:    columns,
		Unassigned: unassigned,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal yaml: %w", err)
	}
	return string(data), nil
}

func yamlNote(n core.Note) YamlNote {
	return YamlNote{
		ID:       n.NoteID.String(),
		Content:  n.Content,
		Color:    n.Color,
		Author:   n.Author,
		EditedBy: n.EditedBy,
		Order:    n.Order,
	}
}
