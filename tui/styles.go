// ABOUTME: Defines lipgloss style constants for the TUI layout panels, status colors, and log formatting.
// ABOUTME: Provides StyleForConn and NoteColorStyle to map domain values to display styles.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Connection status colors
	ConnectingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	LiveStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ResyncStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	DownStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Log event colors
	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	LogEventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogCreateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	LogDeleteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	LogPresenceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// Roster labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(10)
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// Board lanes
	ColumnTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	PoolTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	AuthorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	EditingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
)

// StyleForConn returns the appropriate lipgloss style for a ConnStatus.
func StyleForConn(status ConnStatus) lipgloss.Style {
	switch status {
	case ConnConnecting:
		return ConnectingStyle
	case ConnLive:
		return LiveStyle
	case ConnResync:
		return ResyncStyle
	case ConnDown:
		return DownStyle
	default:
		return ConnectingStyle
	}
}

// noteColors maps the palette names clients put on notes to terminal colors.
var noteColors = map[string]lipgloss.Color{
	"yellow": lipgloss.Color("220"),
	"green":  lipgloss.Color("42"),
	"blue":   lipgloss.Color("75"),
	"pink":   lipgloss.Color("213"),
	"orange": lipgloss.Color("214"),
	"purple": lipgloss.Color("170"),
}

// NoteColorStyle returns a style for a note's color name. Unknown or empty
// names render in the default foreground.
func NoteColorStyle(color string) lipgloss.Style {
	if c, ok := noteColors[color]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
}
