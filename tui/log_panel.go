// ABOUTME: Implements a scrollable event log panel using the bubbles viewport component.
// ABOUTME: Displays live board events with color-coded formatting based on payload type.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// LogPanelModel is a scrollable log of live board events.
type LogPanelModel struct {
	entries  []core.Event
	max      int
	viewport viewport.Model
	focused  bool
	width    int
	height   int
}

// NewLogPanelModel creates a new log panel with a maximum number of entries.
// If maxEntries is <= 0, it defaults to 200.
func NewLogPanelModel(maxEntries int) LogPanelModel {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	vp := viewport.New(80, 10)
	return LogPanelModel{
		entries:  make([]core.Event, 0, maxEntries),
		max:      maxEntries,
		viewport: vp,
	}
}

// Append adds an event to the log, evicting the oldest entry if at capacity.
func (m *LogPanelModel) Append(ev core.Event) {
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, ev)
	m.syncViewport()
}

// Len returns the number of entries in the log.
func (m LogPanelModel) Len() int {
	return len(m.entries)
}

// SetFocused sets whether this panel accepts keyboard input.
func (m *LogPanelModel) SetFocused(focused bool) {
	m.focused = focused
}

// IsFocused returns whether the panel is focused.
func (m LogPanelModel) IsFocused() bool {
	return m.focused
}

// SetSize sets the available dimensions and updates the viewport.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Reserve space for the border (2 lines top/bottom) and title (1 line)
	vpWidth := w - 2
	vpHeight := h - 3
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.syncViewport()
}

// View renders the log panel.
func (m LogPanelModel) View() string {
	title := "EVENT LOG"
	if m.focused {
		title = "EVENT LOG (focused)"
	}

	var content string
	if len(m.entries) == 0 {
		content = "No events yet"
	} else {
		content = m.viewport.View()
	}

	rendered := TitleStyle.Render(title) + "\n" + content

	return BorderStyle.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(rendered)
}

// syncViewport rebuilds the viewport content from entries and scrolls to the bottom.
func (m *LogPanelModel) syncViewport() {
	if len(m.entries) == 0 {
		m.viewport.SetContent("")
		return
	}
	var lines []string
	for _, ev := range m.entries {
		lines = append(lines, formatEntry(ev))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// formatEntry formats a single board event as a log line.
func formatEntry(ev core.Event) string {
	ts := LogTimestampStyle.Render(ev.Timestamp.Local().Format("15:04:05"))
	kind := eventStyle(ev.Payload).Render(ev.Payload.EventPayloadType())

	var parts []string
	parts = append(parts, ts, kind)

	if ev.OriginUser != "" {
		parts = append(parts, fmt.Sprintf("[%s]", ev.OriginUser))
	}

	if s := summarize(ev.Payload); s != "" {
		parts = append(parts, s)
	}

	return strings.Join(parts, " ")
}

// summarize renders the payload-specific detail for a log line.
func summarize(p core.EventPayload) string {
	switch p := p.(type) {
	case core.NoteCreatedPayload:
		return fmt.Sprintf("%q", clip(p.Note.Content, 32))
	case core.NoteUpdatedPayload:
		return "note " + shortID(p.NoteID)
	case core.NoteMovedPayload:
		s := "note " + shortID(p.NoteID)
		if len(p.Renumbered) > 0 {
			s += fmt.Sprintf(" (+%d renumbered)", len(p.Renumbered))
		}
		return s
	case core.NoteDeletedPayload:
		return "note " + shortID(p.NoteID)
	case core.ColumnCreatedPayload:
		return fmt.Sprintf("%q", p.Column.Title)
	case core.ColumnRenamedPayload:
		return fmt.Sprintf("%q", p.Title)
	case core.ColumnDeletedPayload:
		if len(p.Orphaned) > 0 {
			return fmt.Sprintf("%d notes to pool", len(p.Orphaned))
		}
		return ""
	case core.UserConnectedPayload:
		return displayName(p.UserName, p.UserID)
	case core.UserDisconnectedPayload:
		return displayName(p.UserName, p.UserID)
	case core.EditingStartPayload:
		return displayName(p.UserName, p.UserID) + " on " + shortID(p.NoteID)
	case core.EditingStopPayload:
		return displayName(p.UserName, p.UserID) + " on " + shortID(p.NoteID)
	default:
		return ""
	}
}

// eventStyle returns the appropriate lipgloss style for a payload.
func eventStyle(p core.EventPayload) lipgloss.Style {
	switch p.(type) {
	case core.NoteCreatedPayload, core.ColumnCreatedPayload:
		return LogCreateStyle
	case core.NoteDeletedPayload, core.ColumnDeletedPayload:
		return LogDeleteStyle
	case core.UserConnectedPayload, core.UserDisconnectedPayload,
		core.EditingStartPayload, core.EditingStopPayload:
		return LogPresenceStyle
	default:
		return LogEventStyle
	}
}

// clip truncates s to max runes, appending "..." if truncated.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// shortID renders the leading characters of a ULID, enough to eyeball
// matching log lines.
func shortID(id ulid.ULID) string {
	return id.String()[:8]
}

// displayName prefers the human name, falling back to the user ID.
func displayName(name, userID string) string {
	if name != "" {
		return name
	}
	return userID
}
