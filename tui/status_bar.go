// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing session state.
// ABOUTME: Displays board title, connection status, uptime, online count, and the viewer identity.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusBarModel displays session status in a single line.
type StatusBarModel struct {
	user        string
	boardTitle  string
	conn        ConnStatus
	online      int
	connectedAt time.Time
	width       int
}

// NewStatusBarModel creates a StatusBarModel for the given viewer identity.
func NewStatusBarModel(user string) StatusBarModel {
	return StatusBarModel{user: user}
}

// SetBoardTitle sets the board title shown on the left.
func (m *StatusBarModel) SetBoardTitle(title string) {
	m.boardTitle = title
}

// SetConn updates the connection status shown on the bar.
func (m *StatusBarModel) SetConn(status ConnStatus) {
	m.conn = status
}

// SetOnline updates the connected user count.
func (m *StatusBarModel) SetOnline(n int) {
	m.online = n
}

// MarkConnected records when the stream came up, restarting the uptime clock.
func (m *StatusBarModel) MarkConnected() {
	m.connectedAt = time.Now()
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Uptime returns the time since the stream came up, or zero before that.
func (m StatusBarModel) Uptime() time.Duration {
	if m.connectedAt.IsZero() {
		return 0
	}
	return time.Since(m.connectedAt)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	title := m.boardTitle
	if title == "" {
		title = "(no board)"
	}

	content := fmt.Sprintf("Board: %s | %s %s | Up: %s | %d online | You: %s",
		title, m.conn.Icon(), m.conn, formatElapsed(m.Uptime()), m.online, m.user)

	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
