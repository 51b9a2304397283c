// ABOUTME: Event is the envelope for all board mutations, wrapping EventPayload variants.
// ABOUTME: 11 EventPayload variants with tagged union JSON serialization via "type" discriminator.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is the immutable envelope for a board mutation. OriginUser and
// OriginConn identify who caused it and over which connection, so that the
// room can skip the origin socket on fan-out and replicas can suppress
// echoes of their own optimistic changes.
type Event struct {
	EventID    ulid.ULID    `json:"event_id"`
	BoardID    ulid.ULID    `json:"board_id"`
	OriginUser string       `json:"origin_user"`
	OriginConn string       `json:"origin_conn,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Payload    EventPayload `json:"-"` // Custom marshal/unmarshal
}

// NewEvent wraps a payload in an envelope stamped with a fresh ULID and the
// current wall-clock time.
func NewEvent(boardID ulid.ULID, originUser, originConn string, payload EventPayload) Event {
	return Event{
		EventID:    NewULID(),
		BoardID:    boardID,
		OriginUser: originUser,
		OriginConn: originConn,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
}

// eventJSON is the wire format for Event.
type eventJSON struct {
	EventID    ulid.ULID       `json:"event_id"`
	BoardID    ulid.ULID       `json:"board_id"`
	OriginUser string          `json:"origin_user"`
	OriginConn string          `json:"origin_conn,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// MarshalJSON serializes the Event with its payload inlined.
func (e Event) MarshalJSON() ([]byte, error) {
	payloadJSON, err := MarshalEventPayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	j := eventJSON{
		EventID:    e.EventID,
		BoardID:    e.BoardID,
		OriginUser: e.OriginUser,
		OriginConn: e.OriginConn,
		Timestamp:  e.Timestamp,
		Payload:    payloadJSON,
	}
	return json.Marshal(j)
}

// UnmarshalJSON deserializes the Event with its payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	payload, err := UnmarshalEventPayload(j.Payload)
	if err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}
	e.EventID = j.EventID
	e.BoardID = j.BoardID
	e.OriginUser = j.OriginUser
	e.OriginConn = j.OriginConn
	e.Timestamp = j.Timestamp
	e.Payload = payload
	return nil
}

// EventPayload is a tagged union representing the 11 event variants.
type EventPayload interface {
	EventPayloadType() string
	eventPayloadSeal()
}

// NoteCreatedPayload indicates a new note was added to the board.
type NoteCreatedPayload struct {
	Note Note `json:"note"`
}

func (p NoteCreatedPayload) EventPayloadType() string { return "NoteCreated" }
func (p NoteCreatedPayload) eventPayloadSeal()        {}

// NoteUpdatedPayload indicates a note's content or color changed. Nil fields
// are unchanged. EditedBy always carries the authoritative editor list.
type NoteUpdatedPayload struct {
	NoteID   ulid.ULID `json:"note_id"`
	Content  *string   `json:"content,omitempty"`
	Color    *string   `json:"color,omitempty"`
	EditedBy []string  `json:"edited_by"`
}

func (p NoteUpdatedPayload) EventPayloadType() string { return "NoteUpdated" }
func (p NoteUpdatedPayload) eventPayloadSeal()        {}

// NoteMovedPayload indicates a note landed in a container with a
// server-confirmed order key. Renumbered, when present, lists sibling keys
// reassigned by the same move and must be applied before the move itself.
type NoteMovedPayload struct {
	NoteID         ulid.ULID         `json:"note_id"`
	ColumnID       *ulid.ULID        `json:"column_id,omitempty"`
	ConfirmedOrder float64           `json:"confirmed_order"`
	Renumbered     []OrderAssignment `json:"renumbered,omitempty"`
}

func (p NoteMovedPayload) EventPayloadType() string { return "NoteMoved" }
func (p NoteMovedPayload) eventPayloadSeal()        {}

// NoteDeletedPayload indicates a note was removed.
type NoteDeletedPayload struct {
	NoteID ulid.ULID `json:"note_id"`
}

func (p NoteDeletedPayload) EventPayloadType() string { return "NoteDeleted" }
func (p NoteDeletedPayload) eventPayloadSeal()        {}

// ColumnCreatedPayload indicates a new column was added to the board.
type ColumnCreatedPayload struct {
	Column Column `json:"column"`
}

func (p ColumnCreatedPayload) EventPayloadType() string { return "ColumnCreated" }
func (p ColumnCreatedPayload) eventPayloadSeal()        {}

// ColumnRenamedPayload indicates a column's title changed.
type ColumnRenamedPayload struct {
	ColumnID ulid.ULID `json:"column_id"`
	Title    string    `json:"title"`
}

func (p ColumnRenamedPayload) EventPayloadType() string { return "ColumnRenamed" }
func (p ColumnRenamedPayload) eventPayloadSeal()        {}

// ColumnDeletedPayload indicates a column was removed. Its notes survive in
// the unassigned pool; Orphaned lists the pool order key assigned to each,
// preserving their previous relative order.
type ColumnDeletedPayload struct {
	ColumnID ulid.ULID         `json:"column_id"`
	Orphaned []OrderAssignment `json:"orphaned,omitempty"`
}

func (p ColumnDeletedPayload) EventPayloadType() string { return "ColumnDeleted" }
func (p ColumnDeletedPayload) eventPayloadSeal()        {}

// UserConnectedPayload indicates a user joined the board room.
type UserConnectedPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

func (p UserConnectedPayload) EventPayloadType() string { return "UserConnected" }
func (p UserConnectedPayload) eventPayloadSeal()        {}

// UserDisconnectedPayload indicates a user left the board room.
type UserDisconnectedPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

func (p UserDisconnectedPayload) EventPayloadType() string { return "UserDisconnected" }
func (p UserDisconnectedPayload) eventPayloadSeal()        {}

// EditingStartPayload indicates a user began editing a note.
type EditingStartPayload struct {
	NoteID   ulid.ULID `json:"note_id"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name,omitempty"`
}

func (p EditingStartPayload) EventPayloadType() string { return "EditingStart" }
func (p EditingStartPayload) eventPayloadSeal()        {}

// EditingStopPayload indicates a user stopped editing a note.
type EditingStopPayload struct {
	NoteID   ulid.ULID `json:"note_id"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name,omitempty"`
}

func (p EditingStopPayload) EventPayloadType() string { return "EditingStop" }
func (p EditingStopPayload) eventPayloadSeal()        {}

// MarshalEventPayload serializes an EventPayload with a "type" discriminator.
func MarshalEventPayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("cannot marshal nil event payload")
	}
	return marshalTagged(p.EventPayloadType(), p)
}

// UnmarshalEventPayload deserializes an EventPayload from JSON with a "type"
// discriminator.
func UnmarshalEventPayload(data []byte) (EventPayload, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal event payload type: %w", err)
	}

	switch envelope.Type {
	case "NoteCreated":
		var p NoteCreatedPayload
		return p, json.Unmarshal(data, &p)
	case "NoteUpdated":
		var p NoteUpdatedPayload
		return p, json.Unmarshal(data, &p)
	case "NoteMoved":
		var p NoteMovedPayload
		return p, json.Unmarshal(data, &p)
	case "NoteDeleted":
		var p NoteDeletedPayload
		return p, json.Unmarshal(data, &p)
	case "ColumnCreated":
		var p ColumnCreatedPayload
		return p, json.Unmarshal(data, &p)
	case "ColumnRenamed":
		var p ColumnRenamedPayload
		return p, json.Unmarshal(data, &p)
	case "ColumnDeleted":
		var p ColumnDeletedPayload
		return p, json.Unmarshal(data, &p)
	case "UserConnected":
		var p UserConnectedPayload
		return p, json.Unmarshal(data, &p)
	case "UserDisconnected":
		var p UserDisconnectedPayload
		return p, json.Unmarshal(data, &p)
	case "EditingStart":
		var p EditingStartPayload
		return p, json.Unmarshal(data, &p)
	case "EditingStop":
		var p EditingStopPayload
		return p, json.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("unknown event payload type: %q", envelope.Type)
	}
}
