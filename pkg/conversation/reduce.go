package conversation

import (
	"errors"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// Action is an input to Reduce.
type Action interface {
	isAction()
}

// Submitted starts a turn with a user message. AssistantID names the
// placeholder reply opened for the stream.
type Submitted struct {
	User        Message
	AssistantID string
}

// EventReceived applies one decoded stream event.
type EventReceived struct {
	Event protocol.Event
}

// StreamEnded reports a clean end of the transport.
type StreamEnded struct{}

// StreamFailed reports a transport failure or abort.
type StreamFailed struct {
	Err error
}

// ResetRequested clears the conversation.
type ResetRequested struct{}

func (Submitted) isAction()      {}
func (EventReceived) isAction()  {}
func (StreamEnded) isAction()    {}
func (StreamFailed) isAction()   {}
func (ResetRequested) isAction() {}

// Reduce returns the state that results from applying a to s. It never
// modifies s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Submitted:
		return submit(s, a)
	case EventReceived:
		if s.Status != StatusStreaming {
			return s
		}
		return applyEvent(s, a.Event)
	case StreamEnded:
		if s.Status != StatusStreaming {
			return s
		}
		next := s.clone()
		next.Status = StatusIdle
		next.activeID = ""
		return next
	case StreamFailed:
		if s.Status != StatusStreaming {
			return s
		}
		return fail(s, a.Err)
	case ResetRequested:
		return Initial()
	default:
		return s
	}
}

func submit(s State, a Submitted) State {
	next := s.clone()
	user := a.User
	user.Role = protocol.RoleUser
	next.Messages = append(next.Messages, user, Message{ID: a.AssistantID, Role: protocol.RoleAssistant})
	next.Status = StatusStreaming
	next.Err = nil
	next.ToolInvocations = nil
	next.activeID = a.AssistantID
	return next
}

func applyEvent(s State, ev protocol.Event) State {
	switch e := ev.(type) {
	case protocol.TextDelta:
		i := s.messageIndex(s.activeID)
		if i < 0 {
			return s
		}
		next := s.clone()
		next.Messages[i].Content += e.Delta
		return next

	case protocol.ToolInputAvailable:
		if s.invocationIndex(e.ToolCallID) >= 0 {
			return s
		}
		next := s.clone()
		next.ToolInvocations = append(next.ToolInvocations, ToolInvocation{
			ID:       e.ToolCallID,
			ToolName: e.ToolName,
			Input:    protocol.DecodeToolInput(e.ToolName, e.Input),
			RawInput: e.Input,
			State:    InvocationPending,
		})
		return next

	case protocol.ToolOutputAvailable:
		i := s.invocationIndex(e.ToolCallID)
		if i < 0 || s.ToolInvocations[i].State != InvocationPending {
			return s
		}
		next := s.clone()
		inv := &next.ToolInvocations[i]
		inv.State = InvocationCompleted
		inv.Output = protocol.DecodeToolOutput(inv.ToolName, e.Output)
		inv.RawOutput = e.Output
		if preview, ok := protocol.PreviewFromOutput(inv.ToolName, e.Output); ok {
			next.CoursePreview = &preview
		}
		return next

	case protocol.ToolOutputError:
		i := s.invocationIndex(e.ToolCallID)
		if i < 0 || s.ToolInvocations[i].State != InvocationPending {
			return s
		}
		next := s.clone()
		next.ToolInvocations[i].State = InvocationError
		next.ToolInvocations[i].ErrorText = e.ErrorText
		return next

	case protocol.StreamError:
		text := e.ErrorText
		if text == "" {
			text = "stream error"
		}
		return fail(s, errors.New(text))

	case protocol.Done:
		return Reduce(s, StreamEnded{})

	default:
		return s
	}
}

func fail(s State, err error) State {
	next := s.clone()
	if i := next.messageIndex(next.activeID); i >= 0 && next.Messages[i].Content == "" {
		next.Messages = append(next.Messages[:i], next.Messages[i+1:]...)
	}
	next.Status = StatusError
	next.Err = err
	next.activeID = ""
	return next
}
