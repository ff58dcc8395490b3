// Package protocol defines the newline-delimited event stream exchanged
// between the authoring agent and its clients.
//
// Each event travels as one line of the form
//
//	data: {"type":"text-delta","delta":"Hi"}
//
// followed by a blank line. The literal payload [DONE] marks the logical end of
// a turn.
package protocol

import "encoding/json"

// EventType is the discriminant carried in the "type" field of a payload.
type EventType string

const (
	TypeTextDelta           EventType = "text-delta"
	TypeToolInputAvailable  EventType = "tool-input-available"
	TypeToolOutputAvailable EventType = "tool-output-available"
	TypeToolOutputError     EventType = "tool-output-error"
	TypeError               EventType = "error"
	// TypeDone never appears in a JSON payload; it is signalled by the
	// DoneSentinel line.
	TypeDone EventType = "done"
)

const (
	// DataPrefix frames every event line.
	DataPrefix = "data:"
	// DoneSentinel is the payload that marks the end of a turn.
	DoneSentinel = "[DONE]"
)

// Event is one decoded stream record.
type Event interface {
	EventType() EventType
}

// TextDelta appends text to the assistant reply.
type TextDelta struct {
	Delta string
}

// ToolInputAvailable announces a tool call and its arguments.
type ToolInputAvailable struct {
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
}

// ToolOutputAvailable carries the result of a tool call.
type ToolOutputAvailable struct {
	ToolCallID string
	ToolName   string
	Output     json.RawMessage
}

// ToolOutputError reports a failed tool call.
type ToolOutputError struct {
	ToolCallID string
	ToolName   string
	ErrorText  string
}

// StreamError reports a failure that ends the turn.
type StreamError struct {
	ErrorText string
}

// Done marks the end of the turn.
type Done struct{}

func (TextDelta) EventType() EventType           { return TypeTextDelta }
func (ToolInputAvailable) EventType() EventType  { return TypeToolInputAvailable }
func (ToolOutputAvailable) EventType() EventType { return TypeToolOutputAvailable }
func (ToolOutputError) EventType() EventType     { return TypeToolOutputError }
func (StreamError) EventType() EventType         { return TypeError }
func (Done) EventType() EventType                { return TypeDone }

// wireEvent is the JSON shape shared by every payload.
type wireEvent struct {
	Type       EventType       `json:"type"`
	Delta      *string         `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

func toWire(ev Event) (wireEvent, bool) {
	switch e := ev.(type) {
	case TextDelta:
		delta := e.Delta
		return wireEvent{Type: TypeTextDelta, Delta: &delta}, true
	case ToolInputAvailable:
		return wireEvent{Type: TypeToolInputAvailable, ToolCallID: e.ToolCallID, ToolName: e.ToolName, Input: nonNullJSON(e.Input)}, true
	case ToolOutputAvailable:
		return wireEvent{Type: TypeToolOutputAvailable, ToolCallID: e.ToolCallID, ToolName: e.ToolName, Output: nonNullJSON(e.Output)}, true
	case ToolOutputError:
		return wireEvent{Type: TypeToolOutputError, ToolCallID: e.ToolCallID, ToolName: e.ToolName, ErrorText: e.ErrorText}, true
	case StreamError:
		return wireEvent{Type: TypeError, ErrorText: e.ErrorText}, true
	default:
		return wireEvent{}, false
	}
}

func nonNullJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
