// Package conversation keeps the client-side state of an authoring
// conversation and feeds it from the agent's event stream.
package conversation

import (
	"encoding/json"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// InvocationState is the lifecycle state of a tool call. It only moves
// forward: pending, then completed or error.
type InvocationState string

const (
	InvocationPending   InvocationState = "pending"
	InvocationCompleted InvocationState = "completed"
	InvocationError     InvocationState = "error"
)

// Message is one chat message.
type Message struct {
	ID          string                `json:"id"`
	Role        protocol.Role         `json:"role"`
	Content     string                `json:"content"`
	Attachments []protocol.Attachment `json:"attachments,omitempty"`
}

// ToolInvocation tracks one tool call announced by the agent.
type ToolInvocation struct {
	ID        string              `json:"id"`
	ToolName  string              `json:"toolName"`
	Input     protocol.ToolInput  `json:"-"`
	RawInput  json.RawMessage     `json:"input,omitempty"`
	State     InvocationState     `json:"state"`
	Output    protocol.ToolOutput `json:"-"`
	RawOutput json.RawMessage     `json:"output,omitempty"`
	ErrorText string              `json:"errorText,omitempty"`
}

// State is the aggregate root of a conversation. Values are treated as
// immutable; Reduce returns a new State.
type State struct {
	Messages        []Message               `json:"messages"`
	Status          Status                  `json:"status"`
	Err             error                   `json:"-"`
	ToolInvocations []ToolInvocation        `json:"toolInvocations"`
	CoursePreview   *protocol.CoursePreview `json:"coursePreview,omitempty"`

	// activeID is the assistant message receiving the current stream.
	activeID string
}

// Initial returns the empty state of a new conversation.
func Initial() State {
	return State{Status: StatusIdle}
}

// ActiveMessage returns the assistant message currently being streamed.
func (s State) ActiveMessage() (Message, bool) {
	if i := s.messageIndex(s.activeID); i >= 0 {
		return s.Messages[i], true
	}
	return Message{}, false
}

// Invocation returns the tool invocation with the given correlation id.
func (s State) Invocation(id string) (ToolInvocation, bool) {
	if i := s.invocationIndex(id); i >= 0 {
		return s.ToolInvocations[i], true
	}
	return ToolInvocation{}, false
}

// History returns the settled messages in wire form. The message currently
// being streamed and empty messages are left out.
func (s State) History() []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.ID == s.activeID || m.Content == "" {
			continue
		}
		out = append(out, protocol.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (s State) messageIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) invocationIndex(id string) int {
	for i := range s.ToolInvocations {
		if s.ToolInvocations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.ToolInvocations = append([]ToolInvocation(nil), s.ToolInvocations...)
	return out
}
