// ABOUTME: Bubble Tea sub-model rendering the board as side-by-side column lanes.
// ABOUTME: Notes appear in visual order with author lines and editing markers from the replica.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/huddle/core"
	"github.com/2389-research/huddle/replica"
)

// BoardPanelModel displays the column lanes of the replica's board mirror.
type BoardPanelModel struct {
	rep    *replica.Replica
	width  int
	height int
}

// NewBoardPanelModel creates a board panel with no replica attached.
func NewBoardPanelModel() BoardPanelModel {
	return BoardPanelModel{}
}

// SetReplica attaches the replica the panel renders from. Called on every
// (re)connect, when a fresh snapshot builds a fresh replica.
func (m *BoardPanelModel) SetReplica(rep *replica.Replica) {
	m.rep = rep
}

// SetSize sets the available dimensions.
func (m *BoardPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// View renders the board title and its lanes side by side. Notes that belong
// to no column get a trailing Unassigned lane.
func (m BoardPanelModel) View() string {
	if m.rep == nil {
		content := TitleStyle.Render("=== BOARD ===") + "\n" + ValueStyle.Render("Waiting for snapshot")
		return m.bordered(content)
	}

	title := TitleStyle.Render(fmt.Sprintf("=== BOARD: %s ===", m.rep.Board().Title))

	columns := m.rep.Columns()
	pool := m.rep.ContainerNotes(nil)

	laneCount := len(columns)
	if len(pool) > 0 {
		laneCount++
	}
	if laneCount == 0 {
		return m.bordered(title + "\n" + ValueStyle.Render("No columns yet"))
	}

	laneWidth := 24
	if m.width > 0 {
		laneWidth = m.width / laneCount
		if laneWidth < 16 {
			laneWidth = 16
		}
	}

	lanes := make([]string, 0, laneCount)
	for _, col := range columns {
		colID := col.ColumnID
		lanes = append(lanes, m.renderLane(col.Title, ColumnTitleStyle, m.rep.ContainerNotes(&colID), laneWidth))
	}
	if len(pool) > 0 {
		lanes = append(lanes, m.renderLane("Unassigned", PoolTitleStyle, pool, laneWidth))
	}

	return title + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, lanes...)
}

// renderLane renders one bordered lane of notes in visual order.
func (m BoardPanelModel) renderLane(title string, titleStyle lipgloss.Style, notes []core.Note, width int) string {
	inner := width - 4
	if inner < 8 {
		inner = 8
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(clip(title, inner)))

	if len(notes) == 0 {
		b.WriteString("\n")
		b.WriteString(AuthorStyle.Render("(empty)"))
	}
	for _, n := range notes {
		b.WriteString("\n")
		b.WriteString(NoteColorStyle(n.Color).Render(clip(n.Content, inner)))
		b.WriteString("\n")
		b.WriteString(AuthorStyle.Render("  - " + n.Author))
		if editors := m.rep.Editors(n.NoteID); len(editors) > 0 {
			b.WriteString("\n")
			b.WriteString(EditingStyle.Render("  ✎ " + editorNames(editors) + " editing"))
		}
	}

	style := BorderStyle.Width(width - 2)
	if m.height > 3 {
		style = style.Height(m.height - 3)
	}
	return style.Render(b.String())
}

// bordered wraps content in the panel border at the panel's width.
func (m BoardPanelModel) bordered(content string) string {
	if m.width > 0 {
		return BorderStyle.Width(m.width - 2).Render(content)
	}
	return BorderStyle.Render(content)
}

// editorNames joins editor display names for lane and roster markers.
func editorNames(editors []replica.Presence) string {
	names := make([]string, 0, len(editors))
	for _, p := range editors {
		names = append(names, displayName(p.Name, p.UserID))
	}
	return strings.Join(names, ", ")
}
