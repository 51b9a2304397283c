// ABOUTME: Replica mirrors one board on a client, reconciling optimistic moves with
// ABOUTME: server-confirmed events: echo suppression, rollback, and stale detection.
package replica

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// Replica is a client-side mirror of one board. Local moves apply
// immediately for responsive dragging; every other mutation waits for the
// server. Confirmed events fold in idempotently, echoes of this client's own
// commands are suppressed, and any event referencing an unknown note flags
// the replica stale until the owner resyncs from a fresh snapshot.
//
// All methods are safe for concurrent use.
type Replica struct {
	mu       sync.Mutex
	selfUser string
	selfConn string
	state    *core.BoardState
	presence *presenceBook
	pending  map[ulid.ULID]pendingMove
	stale    bool
	onChange func()
}

// pendingMove remembers everything an optimistic move touched so a rejection
// can put it back.
type pendingMove struct {
	noteID     ulid.ULID
	prevColumn *ulid.ULID
	prevOrders map[ulid.ULID]float64
}

// New creates a replica for selfUser seeded from a snapshot. selfConn names
// the event-stream connection this client publishes commands under; events
// echoed back over it are ignored.
func New(selfUser, selfConn string, snap core.Snapshot) *Replica {
	return &Replica{
		selfUser: selfUser,
		selfConn: selfConn,
		state:    core.StateFromSnapshot(snap),
		presence: newPresenceBook(),
		pending:  make(map[ulid.ULID]pendingMove),
	}
}

// SetOnChange registers a callback fired after any visible change. The
// callback runs with the replica locked and must not call back into it.
func (r *Replica) SetOnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// ApplyLocalMove optimistically applies a move intent to the local mirror
// and records a pending entry for later confirmation or rollback. The
// returned placement is this replica's provisional view; the server's
// confirmed order may differ and wins on arrival.
func (r *Replica) ApplyLocalMove(noteID ulid.ULID, intent core.MoveIntent) (core.Placement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	note, ok := r.state.Notes[noteID]
	if !ok {
		return core.Placement{}, &core.NoteNotFoundError{NoteID: noteID}
	}

	siblings := withoutNote(r.state.ContainerNotes(intent.ColumnID), noteID)
	placement, err := core.PlaceNote(intent, siblings)
	if err != nil {
		var nfe *core.NeighborNotFoundError
		if !errors.As(err, &nfe) {
			return core.Placement{}, err
		}
		// The anchor vanished between gesture and apply. Land at the end,
		// matching what the server will do with the same intent.
		placement, err = core.PlaceNote(core.InsertAt(intent.ColumnID, core.EdgeEnd), siblings)
		if err != nil {
			return core.Placement{}, err
		}
	}

	// First move of this note since the last confirmation owns the rollback
	// point; stacked moves keep it.
	if _, exists := r.pending[noteID]; !exists {
		entry := pendingMove{
			noteID:     noteID,
			prevColumn: core.CloneContainerRef(note.ColumnID),
			prevOrders: map[ulid.ULID]float64{noteID: note.Order},
		}
		for _, a := range placement.Renumbered {
			entry.prevOrders[a.NoteID] = r.state.Notes[a.NoteID].Order
		}
		r.pending[noteID] = entry
	}

	now := time.Now().UTC()
	for _, a := range placement.Renumbered {
		sib := r.state.Notes[a.NoteID]
		sib.Order = a.Order
		r.state.Notes[a.NoteID] = sib
	}
	note = r.state.Notes[noteID]
	note.ColumnID = core.CloneContainerRef(intent.ColumnID)
	note.Order = placement.Order
	note.UpdatedAt = now
	r.state.Notes[noteID] = note

	r.notify()
	return placement, nil
}

// ConfirmLocal folds the server's response event for one of this client's
// own commands. For moves it clears the pending entry and adopts the
// confirmed order, superseding the optimistic one.
func (r *Replica) ConfirmLocal(ev *core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := ev.Payload.(core.NoteMovedPayload); ok {
		delete(r.pending, p.NoteID)
	}
	r.fold(ev)
	r.notify()
}

// FailLocalMove rolls back an optimistic move the server rejected,
// restoring the note's previous container and every touched order key.
func (r *Replica) FailLocalMove(noteID ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[noteID]
	if !ok {
		return
	}
	delete(r.pending, noteID)

	for id, order := range entry.prevOrders {
		n, ok := r.state.Notes[id]
		if !ok {
			continue
		}
		n.Order = order
		r.state.Notes[id] = n
	}
	if n, ok := r.state.Notes[noteID]; ok {
		n.ColumnID = core.CloneContainerRef(entry.prevColumn)
		r.state.Notes[noteID] = n
	}
	r.notify()
}

// ApplyRemote folds a fan-out event from the board room. Events that
// originated from this client are discarded: their effects either already
// applied optimistically or arrive through ConfirmLocal.
func (r *Replica) ApplyRemote(ev *core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isEcho(ev) {
		return
	}
	r.fold(ev)
	r.notify()
}

// isEcho reports whether ev reflects one of this client's own commands.
// The room already skips the origin connection on fan-out; checking again
// here keeps the replica correct on transports that echo, and the user-level
// check drops self-authored events whose effects arrive via ConfirmLocal.
func (r *Replica) isEcho(ev *core.Event) bool {
	if ev.OriginConn != "" && ev.OriginConn == r.selfConn {
		return true
	}
	return ev.OriginUser == r.selfUser
}

// fold applies an event to state and presence under the held lock.
func (r *Replica) fold(ev *core.Event) {
	if r.presence.fold(ev.Payload) {
		return
	}
	if p, ok := ev.Payload.(core.NoteDeletedPayload); ok {
		r.presence.noteDeleted(p.NoteID)
	}
	if err := r.state.Apply(ev); err != nil {
		if core.IsNotFound(err) {
			r.stale = true
		}
	}
}

// Stale reports whether this replica has observed proof that it missed
// events and needs a fresh snapshot.
func (r *Replica) Stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale
}

// Resync replaces the mirror with a fresh snapshot, clearing the stale flag
// and dropping pending move bookkeeping. Presence carries over; it is
// advisory and refreshed by live events.
func (r *Replica) Resync(snap core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = core.StateFromSnapshot(snap)
	r.pending = make(map[ulid.ULID]pendingMove)
	r.stale = false
	r.notify()
}

// Board returns the board header.
func (r *Replica) Board() core.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Board
}

// Columns returns the columns in display order.
func (r *Replica) Columns() []core.Column {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.OrderedColumns()
}

// ContainerNotes returns one container's notes in visual order. A nil
// columnID addresses the unassigned pool.
func (r *Replica) ContainerNotes(columnID *ulid.ULID) []core.Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ContainerNotes(columnID)
}

// Snapshot flattens the current mirror.
func (r *Replica) Snapshot() core.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

// ConnectedUsers lists users currently present in the room, sorted by id.
func (r *Replica) ConnectedUsers() []Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.connectedUsers()
}

// Editors lists users currently editing a note, sorted by id.
func (r *Replica) Editors(noteID ulid.ULID) []Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.editors(noteID)
}

// PendingMoves reports how many optimistic moves await confirmation.
func (r *Replica) PendingMoves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// notify fires the change callback under the held lock.
func (r *Replica) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}

// withoutNote filters id out of notes, preserving order.
func withoutNote(notes []core.Note, id ulid.ULID) []core.Note {
	out := make([]core.Note, 0, len(notes))
	for _, n := range notes {
		if n.NoteID != id {
			out = append(out, n)
		}
	}
	return out
}
