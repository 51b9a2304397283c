// ABOUTME: Hub is the registry of live board rooms, gating entry through an Authorizer.
// ABOUTME: Join/Leave/Publish/Disconnect route to per-board room actors; trackers reap empty rooms.
package hub

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/2389-research/huddle/core"
)

// Identity names an authenticated participant.
type Identity struct {
	UserID string
	Name   string
}

// Authorizer decides whether an identity may enter a board room. A nil error
// admits; a DeniedError (or any other error) keeps the caller out.
type Authorizer interface {
	CanAccessBoard(ctx context.Context, id Identity, boardID ulid.ULID) error
}

// AllowAll admits every authenticated identity to every board. Suits
// single-team deployments with no membership backend configured.
type AllowAll struct{}

func (AllowAll) CanAccessBoard(context.Context, Identity, ulid.ULID) error { return nil }

// DeniedError reports a refused room entry. It is delivered to the denied
// caller only; the room never learns the attempt happened.
type DeniedError struct {
	UserID  string
	BoardID ulid.ULID
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("user %s denied access to board %s", e.UserID, e.BoardID)
}

// ErrHubClosed indicates an operation on a hub that has been shut down.
var ErrHubClosed = fmt.Errorf("hub closed")

// Subscription is one connection's live membership in a board room. Events
// carries the room's fan-out, excluding events this connection originated.
// The channel closes when the membership ends for any reason.
type Subscription struct {
	BoardID  ulid.ULID
	ConnID   string
	Identity Identity
	Events   <-chan core.Event

	hub *Hub
	gen uint64
}

// Close ends the membership. Safe to call more than once. A subscription
// that was already replaced by a newer Join of the same connection closes
// without touching the replacement.
func (s *Subscription) Close() {
	s.hub.leave(s.BoardID, s.ConnID, s.gen, true)
}

// Hub owns all live rooms. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	authz  Authorizer
	log    *logrus.Logger
	rooms  map[ulid.ULID]*room
	conns  map[string]mapset.Set[ulid.ULID]
	closed bool
}

// New creates a hub gated by authz. A nil authz admits everyone.
func New(authz Authorizer, log *logrus.Logger) *Hub {
	if authz == nil {
		authz = AllowAll{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		authz: authz,
		log:   log,
		rooms: make(map[ulid.ULID]*room),
		conns: make(map[string]mapset.Set[ulid.ULID]),
	}
}

// Join admits a connection into a board's room after the access check, and
// announces the user to the rest of the room. A connection joining a board
// it already sits in replaces its previous membership; the old subscription
// channel closes.
func (h *Hub) Join(ctx context.Context, boardID ulid.ULID, connID string, id Identity) (*Subscription, error) {
	if err := h.authz.CanAccessBoard(ctx, id, boardID); err != nil {
		h.log.WithFields(logrus.Fields{
			"board_id": boardID.String(),
			"user_id":  id.UserID,
		}).Warn("room join denied")
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	r, ok := h.rooms[boardID]
	if !ok {
		r = spawnRoom(boardID, h.log)
		h.rooms[boardID] = r
	}
	ch, gen := r.join(connID, id)

	boards, ok := h.conns[connID]
	if !ok {
		boards = mapset.NewSet[ulid.ULID]()
		h.conns[connID] = boards
	}
	boards.Add(boardID)

	h.log.WithFields(logrus.Fields{
		"board_id": boardID.String(),
		"conn_id":  connID,
		"user_id":  id.UserID,
	}).Info("room joined")

	return &Subscription{
		BoardID:  boardID,
		ConnID:   connID,
		Identity: id,
		Events:   ch,
		hub:      h,
		gen:      gen,
	}, nil
}

// Leave removes a connection from a board's room, announcing the departure
// to the remaining members. Leaving a room the connection is not in is a
// no-op. The last member out turns off the lights: the room is reaped and
// its journal taps close.
func (h *Hub) Leave(boardID ulid.ULID, connID string) {
	h.leave(boardID, connID, 0, false)
}

// Disconnect removes a connection from every room it joined. Called when a
// client's transport drops without explicit leaves.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	boards, ok := h.conns[connID]
	if !ok {
		return
	}
	for _, boardID := range boards.ToSlice() {
		h.leaveLocked(boardID, connID, 0, false)
	}
}

func (h *Hub) leave(boardID ulid.ULID, connID string, gen uint64, matchGen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(boardID, connID, gen, matchGen)
}

func (h *Hub) leaveLocked(boardID ulid.ULID, connID string, gen uint64, matchGen bool) {
	r, ok := h.rooms[boardID]
	if !ok {
		return
	}
	left, empty := r.leave(connID, gen, matchGen)
	if !left {
		return
	}

	if boards, ok := h.conns[connID]; ok {
		boards.Remove(boardID)
		if boards.Cardinality() == 0 {
			delete(h.conns, connID)
		}
	}
	if empty {
		r.stop()
		delete(h.rooms, boardID)
	}

	h.log.WithFields(logrus.Fields{
		"board_id": boardID.String(),
		"conn_id":  connID,
	}).Info("room left")
}

// Publish fans an event out to the board's room members, skipping the event's
// origin connection. Publishing to a board with no live room is a no-op;
// there is nobody to tell.
func (h *Hub) Publish(boardID ulid.ULID, ev core.Event) {
	h.mu.RLock()
	r, ok := h.rooms[boardID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	r.publish(ev)
}

// Tap attaches an observer channel receiving every room event with no origin
// exclusion, so a diagnostic consumer sees the frames that fan-out suppresses.
// The tap lives until cancel is called or the room is reaped. Tapping creates
// the room if needed but does not keep it alive: taps close when the last
// member leaves.
func (h *Hub) Tap(boardID ulid.ULID) (<-chan core.Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, ErrHubClosed
	}

	r, ok := h.rooms[boardID]
	if !ok {
		r = spawnRoom(boardID, h.log)
		h.rooms[boardID] = r
	}
	ch, tapID := r.tap()
	cancel := func() {
		h.mu.RLock()
		cur, ok := h.rooms[boardID]
		h.mu.RUnlock()
		if ok && cur == r {
			r.untap(tapID)
		}
	}
	return ch, cancel, nil
}

// RoomStat describes one live room for diagnostics.
type RoomStat struct {
	BoardID ulid.ULID
	Members int
	Users   []string
	Dropped uint64
}

// Stats reports every live room.
func (h *Hub) Stats() []RoomStat {
	h.mu.RLock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	stats := make([]RoomStat, 0, len(rooms))
	for _, r := range rooms {
		stats = append(stats, r.stats())
	}
	return stats
}

// Close stops every room and refuses further joins.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, r := range h.rooms {
		r.stop()
		delete(h.rooms, id)
	}
	h.conns = make(map[string]mapset.Set[ulid.ULID])
}
