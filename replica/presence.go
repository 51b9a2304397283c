// ABOUTME: Presence bookkeeping for a board replica: who is connected, who edits what.
// ABOUTME: Folds user-connected/disconnected and editing-start/stop events into queryable sets.
package replica

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// Presence identifies one participant visible through room events.
type Presence struct {
	UserID string
	Name   string
}

// presenceBook tracks connected users and per-note editor sets. Not safe for
// concurrent use; the owning replica serializes access.
type presenceBook struct {
	connected mapset.Set[string]
	editing   map[ulid.ULID]mapset.Set[string]
	names     map[string]string
}

func newPresenceBook() *presenceBook {
	return &presenceBook{
		connected: mapset.NewThreadUnsafeSet[string](),
		editing:   make(map[ulid.ULID]mapset.Set[string]),
		names:     make(map[string]string),
	}
}

// fold applies a presence payload. Non-presence payloads report false.
func (b *presenceBook) fold(payload core.EventPayload) bool {
	switch p := payload.(type) {
	case core.UserConnectedPayload:
		b.connected.Add(p.UserID)
		b.remember(p.UserID, p.UserName)
	case core.UserDisconnectedPayload:
		b.connected.Remove(p.UserID)
		for noteID, editors := range b.editing {
			editors.Remove(p.UserID)
			if editors.Cardinality() == 0 {
				delete(b.editing, noteID)
			}
		}
	case core.EditingStartPayload:
		editors, ok := b.editing[p.NoteID]
		if !ok {
			editors = mapset.NewThreadUnsafeSet[string]()
			b.editing[p.NoteID] = editors
		}
		editors.Add(p.UserID)
		b.remember(p.UserID, p.UserName)
	case core.EditingStopPayload:
		if editors, ok := b.editing[p.NoteID]; ok {
			editors.Remove(p.UserID)
			if editors.Cardinality() == 0 {
				delete(b.editing, p.NoteID)
			}
		}
	default:
		return false
	}
	return true
}

func (b *presenceBook) remember(userID, name string) {
	if name != "" {
		b.names[userID] = name
	}
}

// noteDeleted drops editor state for a removed note.
func (b *presenceBook) noteDeleted(noteID ulid.ULID) {
	delete(b.editing, noteID)
}

func (b *presenceBook) connectedUsers() []Presence {
	return b.presences(b.connected)
}

func (b *presenceBook) editors(noteID ulid.ULID) []Presence {
	editors, ok := b.editing[noteID]
	if !ok {
		return nil
	}
	return b.presences(editors)
}

// presences resolves a user-id set into sorted Presence values.
func (b *presenceBook) presences(ids mapset.Set[string]) []Presence {
	out := make([]Presence, 0, ids.Cardinality())
	for _, id := range ids.ToSlice() {
		out = append(out, Presence{UserID: id, Name: b.names[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
