// ABOUTME: tea.Cmd factories bridging client fetches and timers into the Bubble Tea loop.
// ABOUTME: ResyncCmd refetches a snapshot for a stale replica; TickCmd drives the status clock.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/ulid/v2"
)

// resyncTimeout bounds a snapshot refetch so a hung server cannot wedge the
// resync state machine.
const resyncTimeout = 10 * time.Second

// ResyncCmd returns a tea.Cmd that refetches the board snapshot. The result
// arrives as a ResyncMsg whether the fetch succeeded or not.
func ResyncCmd(client *Client, boardID ulid.ULID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		snap, err := client.Snapshot(ctx, boardID)
		return ResyncMsg{Snapshot: snap, Err: err}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
// Used for the status bar clock.
func TickCmd(interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(interval)
		return TickMsg{Time: time.Now()}
	}
}
