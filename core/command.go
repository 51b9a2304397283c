// ABOUTME: Command is a tagged union representing all client mutations to a board.
// ABOUTME: 9 variants plus the posted envelope carrying idempotency key and origin connection.
package core

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Command represents a mutation intent for a board. Tagged union with 9 variants.
type Command interface {
	CommandType() string
	commandSeal()
}

// CreateNoteCommand adds a note, appended at the end of the target container.
// A nil ColumnID targets the unassigned pool.
type CreateNoteCommand struct {
	Content  string     `json:"content"`
	Color    string     `json:"color,omitempty"`
	ColumnID *ulid.ULID `json:"column_id,omitempty"`
}

func (c CreateNoteCommand) CommandType() string { return "CreateNote" }
func (c CreateNoteCommand) commandSeal()        {}

// UpdateNoteCommand changes a note's content or color. Nil fields are left
// untouched.
type UpdateNoteCommand struct {
	NoteID  ulid.ULID `json:"note_id"`
	Content *string   `json:"content,omitempty"`
	Color   *string   `json:"color,omitempty"`
}

func (c UpdateNoteCommand) CommandType() string { return "UpdateNote" }
func (c UpdateNoteCommand) commandSeal()        {}

// MoveNoteCommand relocates a note according to a neighbor-relative intent.
type MoveNoteCommand struct {
	NoteID ulid.ULID  `json:"note_id"`
	Intent MoveIntent `json:"intent"`
}

func (c MoveNoteCommand) CommandType() string { return "MoveNote" }
func (c MoveNoteCommand) commandSeal()        {}

// DeleteNoteCommand removes a note from the board.
type DeleteNoteCommand struct {
	NoteID ulid.ULID `json:"note_id"`
}

func (c DeleteNoteCommand) CommandType() string { return "DeleteNote" }
func (c DeleteNoteCommand) commandSeal()        {}

// CreateColumnCommand adds a column after the board's existing columns.
type CreateColumnCommand struct {
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

func (c CreateColumnCommand) CommandType() string { return "CreateColumn" }
func (c CreateColumnCommand) commandSeal()        {}

// RenameColumnCommand changes a column's title.
type RenameColumnCommand struct {
	ColumnID ulid.ULID `json:"column_id"`
	Title    string    `json:"title"`
}

func (c RenameColumnCommand) CommandType() string { return "RenameColumn" }
func (c RenameColumnCommand) commandSeal()        {}

// DeleteColumnCommand removes a column. Its notes drop into the unassigned
// pool rather than being deleted with it.
type DeleteColumnCommand struct {
	ColumnID ulid.ULID `json:"column_id"`
}

func (c DeleteColumnCommand) CommandType() string { return "DeleteColumn" }
func (c DeleteColumnCommand) commandSeal()        {}

// StartEditingCommand announces the sender began editing a note.
type StartEditingCommand struct {
	NoteID ulid.ULID `json:"note_id"`
}

func (c StartEditingCommand) CommandType() string { return "StartEditing" }
func (c StartEditingCommand) commandSeal()        {}

// StopEditingCommand announces the sender stopped editing a note.
type StopEditingCommand struct {
	NoteID ulid.ULID `json:"note_id"`
}

func (c StopEditingCommand) CommandType() string { return "StopEditing" }
func (c StopEditingCommand) commandSeal()        {}

// CommandEnvelope is the posted wire form of a command. ConnID names the
// sender's live event stream connection so the room can exclude it from
// fan-out. IdempotencyKey, when set, lets the server drop retried submissions.
type CommandEnvelope struct {
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	ConnID         string  `json:"conn_id,omitempty"`
	Command        Command `json:"-"` // Custom marshal/unmarshal
}

// commandEnvelopeJSON is the wire format for CommandEnvelope.
type commandEnvelopeJSON struct {
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ConnID         string          `json:"conn_id,omitempty"`
	Command        json.RawMessage `json:"command"`
}

// MarshalJSON serializes the envelope with its command inlined.
func (e CommandEnvelope) MarshalJSON() ([]byte, error) {
	cmdJSON, err := MarshalCommand(e.Command)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope command: %w", err)
	}
	j := commandEnvelopeJSON{
		IdempotencyKey: e.IdempotencyKey,
		ConnID:         e.ConnID,
		Command:        cmdJSON,
	}
	return json.Marshal(j)
}

// UnmarshalJSON deserializes the envelope and its command.
func (e *CommandEnvelope) UnmarshalJSON(data []byte) error {
	var j commandEnvelopeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if len(j.Command) == 0 {
		return fmt.Errorf("command envelope missing command")
	}
	cmd, err := UnmarshalCommand(j.Command)
	if err != nil {
		return fmt.Errorf("unmarshal envelope command: %w", err)
	}
	e.IdempotencyKey = j.IdempotencyKey
	e.ConnID = j.ConnID
	e.Command = cmd
	return nil
}

// MarshalCommand serializes a Command with a "type" discriminator.
func MarshalCommand(c Command) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot marshal nil command")
	}
	return marshalTagged(c.CommandType(), c)
}

// UnmarshalCommand deserializes a Command from JSON with a "type" discriminator.
func UnmarshalCommand(data []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal command type: %w", err)
	}

	switch envelope.Type {
	case "CreateNote":
		var c CreateNoteCommand
		return c, json.Unmarshal(data, &c)
	case "UpdateNote":
		var c UpdateNoteCommand
		return c, json.Unmarshal(data, &c)
	case "MoveNote":
		var c MoveNoteCommand
		return c, json.Unmarshal(data, &c)
	case "DeleteNote":
		var c DeleteNoteCommand
		return c, json.Unmarshal(data, &c)
	case "CreateColumn":
		var c CreateColumnCommand
		return c, json.Unmarshal(data, &c)
	case "RenameColumn":
		var c RenameColumnCommand
		return c, json.Unmarshal(data, &c)
	case "DeleteColumn":
		var c DeleteColumnCommand
		return c, json.Unmarshal(data, &c)
	case "StartEditing":
		var c StartEditingCommand
		return c, json.Unmarshal(data, &c)
	case "StopEditing":
		var c StopEditingCommand
		return c, json.Unmarshal(data, &c)
	default:
		return nil, fmt.Errorf("unknown command type: %q", envelope.Type)
	}
}

// marshalTagged marshals v then injects the "type" discriminator field.
func marshalTagged(typeName string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(typeName)
	m["type"] = typeJSON
	return json.Marshal(m)
}
