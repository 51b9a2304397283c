// ABOUTME: Bubble Tea sub-model listing who is in the board room and what they are editing.
// ABOUTME: Renders from the replica's presence book, which live events keep current.
package tui

import (
	"fmt"
	"strings"

	"github.com/2389-research/huddle/replica"
)

// RosterPanelModel displays connected users and active editors.
type RosterPanelModel struct {
	rep    *replica.Replica
	width  int
	height int
}

// NewRosterPanelModel creates a roster panel with no replica attached.
func NewRosterPanelModel() RosterPanelModel {
	return RosterPanelModel{}
}

// SetReplica attaches the replica the panel renders from.
func (m *RosterPanelModel) SetReplica(rep *replica.Replica) {
	m.rep = rep
}

// SetSize sets the available dimensions.
func (m *RosterPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// View renders the roster panel. The replica only learns about other
// participants, so the viewer's own identity never shows up here.
func (m RosterPanelModel) View() string {
	var lines []string
	lines = append(lines, TitleStyle.Render("ROOM"))

	if m.rep == nil {
		lines = append(lines, ValueStyle.Render("Waiting for snapshot"))
	} else {
		users := m.rep.ConnectedUsers()
		lines = append(lines, LabelStyle.Render("Online:")+ValueStyle.Render(fmt.Sprintf("%d", len(users))))
		for _, u := range users {
			lines = append(lines, ValueStyle.Render("  "+displayName(u.Name, u.UserID)))
		}
		lines = append(lines, m.editingLines()...)
	}

	content := strings.Join(lines, "\n")

	style := BorderStyle
	if m.width > 0 {
		style = style.Width(m.width - 2)
	}
	if m.height > 0 {
		style = style.Height(m.height - 2)
	}
	return style.Render(content)
}

// editingLines lists each note someone is editing, with the editors' names.
func (m RosterPanelModel) editingLines() []string {
	var lines []string
	for _, n := range m.rep.Snapshot().Notes {
		editors := m.rep.Editors(n.NoteID)
		if len(editors) == 0 {
			continue
		}
		lines = append(lines, EditingStyle.Render(fmt.Sprintf("  ✎ %s: %q", editorNames(editors), clip(n.Content, 20))))
	}
	return lines
}
