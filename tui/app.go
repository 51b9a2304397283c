// ABOUTME: Top-level Bubble Tea AppModel that composes the live board viewer panels.
// ABOUTME: Folds stream frames into the replica and refetches a snapshot when it goes stale.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/replica"
)

// FocusTarget indicates which panel currently has keyboard focus.
type FocusTarget int

const (
	FocusBoard FocusTarget = iota
	FocusLog
)

// AppModel is the top-level Bubble Tea model for the live board viewer. The
// stream client runs in its own goroutine and injects frames via
// Program.Send; AppModel folds them into the replica and re-renders.
type AppModel struct {
	client  *Client
	boardID ulid.ULID
	user    string

	rep    *replica.Replica
	connID string

	board     BoardPanelModel
	roster    RosterPanelModel
	log       LogPanelModel
	statusBar StatusBarModel
	spin      spinner.Model

	conn      ConnStatus
	lastErr   error
	resyncing bool
	focus     FocusTarget
	width     int
	height    int
}

// NewAppModel creates an AppModel for the given board. The client is used
// for snapshot refetches when the replica goes stale.
func NewAppModel(client *Client, boardID ulid.ULID, user string) AppModel {
	return AppModel{
		client:    client,
		boardID:   boardID,
		user:      user,
		board:     NewBoardPanelModel(),
		roster:    NewRosterPanelModel(),
		log:       NewLogPanelModel(200),
		statusBar: NewStatusBarModel(user),
		spin:      spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(ConnectingStyle)),
		conn:      ConnConnecting,
		focus:     FocusBoard,
	}
}

// Init implements tea.Model. The stream itself is started by the caller via
// Client.Run; Init only starts the spinner and the status clock.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, TickCmd(time.Second))
}

// Update implements tea.Model. Routes incoming messages to the appropriate
// handler and returns the updated model with any follow-up commands.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case HelloMsg:
		return m.handleHello(msg)

	case SnapshotMsg:
		return m.handleSnapshot(msg)

	case EventMsg:
		return m.handleEvent(msg)

	case ResyncMsg:
		return m.handleResync(msg)

	case StreamDownMsg:
		return m.handleStreamDown(msg)

	case TickMsg:
		return m, TickCmd(time.Second)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model. Renders the full viewer layout.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// Minimum terminal size guard to prevent layout overflow
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	if m.rep == nil {
		return m.connectingView()
	}

	// Layout calculations
	statusBarHeight := 1
	boardHeight := (m.height - statusBarHeight) * 60 / 100
	if boardHeight < 5 {
		boardHeight = 5
	}
	bottomHeight := m.height - statusBarHeight - boardHeight
	if bottomHeight < 3 {
		bottomHeight = 3
	}

	rosterWidth := m.width * 30 / 100
	if rosterWidth < 16 {
		rosterWidth = 16
	}
	logWidth := m.width - rosterWidth
	if logWidth < 10 {
		logWidth = 10
	}

	// Update panel sizes
	m.board.SetSize(m.width, boardHeight)
	m.roster.SetSize(rosterWidth, bottomHeight)
	m.log.SetSize(logWidth, bottomHeight)
	m.statusBar.SetWidth(m.width)

	bottomView := lipgloss.JoinHorizontal(lipgloss.Top, m.roster.View(), m.log.View())

	// Assemble full view
	var b strings.Builder
	b.WriteString(m.board.View())
	b.WriteString("\n")
	b.WriteString(bottomView)
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())

	return b.String()
}

// connectingView renders the pre-snapshot holding screen.
func (m AppModel) connectingView() string {
	line := fmt.Sprintf("%s connecting to board %s as %s", m.spin.View(), m.boardID, m.user)
	if m.conn == ConnDown && m.lastErr != nil {
		line += "\n" + DownStyle.Render(fmt.Sprintf("stream down: %v (retrying)", m.lastErr))
	}
	return line
}

// handleWindowSize updates the stored dimensions.
func (m AppModel) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	return m, nil
}

// handleHello stores the connection ID the server assigned. The snapshot
// frame that follows builds the replica around it.
func (m AppModel) handleHello(msg HelloMsg) (tea.Model, tea.Cmd) {
	m.connID = msg.ConnID
	return m, nil
}

// handleSnapshot builds a fresh replica from the stream-opening snapshot.
// Reconnects come through here too, replacing the previous replica outright.
func (m AppModel) handleSnapshot(msg SnapshotMsg) (tea.Model, tea.Cmd) {
	m.rep = replica.New(m.user, m.connID, msg.Snapshot)
	m.board.SetReplica(m.rep)
	m.roster.SetReplica(m.rep)
	m.conn = ConnLive
	m.lastErr = nil
	m.resyncing = false
	m.statusBar.MarkConnected()
	m.syncStatus()
	return m, nil
}

// handleEvent folds a live event into the replica and logs it. A stale
// replica triggers one snapshot refetch; later events leave the in-flight
// fetch alone.
func (m AppModel) handleEvent(msg EventMsg) (tea.Model, tea.Cmd) {
	if m.rep == nil {
		return m, nil
	}
	m.log.Append(msg.Event)
	m.rep.ApplyRemote(&msg.Event)
	m.syncStatus()

	if m.rep.Stale() && !m.resyncing {
		m.resyncing = true
		m.conn = ConnResync
		m.statusBar.SetConn(m.conn)
		return m, ResyncCmd(m.client, m.boardID)
	}
	return m, nil
}

// handleResync folds the refetched snapshot into the replica. A failed
// fetch leaves the replica stale; the next event triggers another attempt.
func (m AppModel) handleResync(msg ResyncMsg) (tea.Model, tea.Cmd) {
	m.resyncing = false
	if msg.Err != nil {
		m.lastErr = msg.Err
		return m, nil
	}
	if m.rep != nil {
		m.rep.Resync(msg.Snapshot)
	}
	if m.conn == ConnResync {
		m.conn = ConnLive
	}
	m.lastErr = nil
	m.syncStatus()
	return m, nil
}

// handleStreamDown marks the connection lost. The client goroutine keeps
// redialing; a fresh hello and snapshot arrive when it gets through.
func (m AppModel) handleStreamDown(msg StreamDownMsg) (tea.Model, tea.Cmd) {
	m.conn = ConnDown
	m.lastErr = msg.Err
	m.statusBar.SetConn(m.conn)
	return m, nil
}

// handleKeyMsg processes keyboard input.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "ctrl+c":
		return m, tea.Quit
	case "r":
		if m.rep != nil && !m.resyncing {
			m.resyncing = true
			m.conn = ConnResync
			m.statusBar.SetConn(m.conn)
			return m, ResyncCmd(m.client, m.boardID)
		}
		return m, nil
	case "tab":
		m.focus = m.nextFocus()
		m.log.SetFocused(m.focus == FocusLog)
		return m, nil
	}

	return m, nil
}

// nextFocus cycles the focus target between board and log.
func (m AppModel) nextFocus() FocusTarget {
	switch m.focus {
	case FocusBoard:
		return FocusLog
	case FocusLog:
		return FocusBoard
	default:
		return FocusBoard
	}
}

// syncStatus refreshes the status bar from the replica.
func (m *AppModel) syncStatus() {
	if m.rep == nil {
		return
	}
	m.statusBar.SetBoardTitle(m.rep.Board().Title)
	m.statusBar.SetOnline(len(m.rep.ConnectedUsers()))
	m.statusBar.SetConn(m.conn)
}
