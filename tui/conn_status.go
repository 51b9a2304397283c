// ABOUTME: Defines the ConnStatus enum representing the board stream connection state.
// ABOUTME: Provides String/Icon methods for TUI rendering.
package tui

// ConnStatus represents the state of the board stream connection.
type ConnStatus int

const (
	ConnConnecting ConnStatus = iota // No stream yet
	ConnLive                         // Stream up, replica current
	ConnResync                       // Replica stale, snapshot refetch in flight
	ConnDown                         // Stream lost, redialing
)

// String returns the lowercase name of the status.
func (s ConnStatus) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnLive:
		return "live"
	case ConnResync:
		return "resyncing"
	case ConnDown:
		return "offline"
	default:
		return "unknown"
	}
}

// Icon returns a bracket-style status marker for TUI display.
func (s ConnStatus) Icon() string {
	switch s {
	case ConnConnecting:
		return "[~]"
	case ConnLive:
		return "[*]"
	case ConnResync:
		return "[~]"
	case ConnDown:
		return "[!]"
	default:
		return "[?]"
	}
}
