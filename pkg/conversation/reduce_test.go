package conversation

import (
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

func streaming() State {
	return Reduce(Initial(), Submitted{User: Message{ID: "u1", Content: "make me a course on X"}, AssistantID: "a1"})
}

func applyAll(s State, events ...protocol.Event) State {
	for _, ev := range events {
		s = Reduce(s, EventReceived{Event: ev})
	}
	return s
}

func TestSubmittedOpensPlaceholder(t *testing.T) {
	prev := Initial()
	prev.ToolInvocations = []ToolInvocation{{ID: "old", State: InvocationCompleted}}
	prev.Err = errors.New("old failure")
	prev.Status = StatusError

	s := Reduce(prev, Submitted{User: Message{ID: "u1", Content: "hi"}, AssistantID: "a1"})

	assert.Equal(t, StatusStreaming, s.Status)
	assert.Nil(t, s.Err)
	assert.Empty(t, s.ToolInvocations)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, protocol.RoleUser, s.Messages[0].Role)
	assert.Equal(t, Message{ID: "a1", Role: protocol.RoleAssistant}, s.Messages[1])

	active, ok := s.ActiveMessage()
	require.True(t, ok)
	assert.Equal(t, "a1", active.ID)

	assert.Len(t, prev.ToolInvocations, 1, "input state is untouched")
}

func TestTextDeltasConcatenateInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 100; round++ {
		n := rng.Intn(20)
		var want strings.Builder
		s := streaming()
		for i := 0; i < n; i++ {
			delta := strings.Repeat(string(rune('a'+rng.Intn(3))), rng.Intn(3))
			want.WriteString(delta)
			s = Reduce(s, EventReceived{Event: protocol.TextDelta{Delta: delta}})
		}
		active, ok := s.ActiveMessage()
		require.True(t, ok)
		assert.Equal(t, want.String(), active.Content, "repeated deltas are never deduplicated")
	}
}

func TestToolStateIsMonotonic(t *testing.T) {
	s := applyAll(streaming(),
		protocol.ToolInputAvailable{ToolCallID: "c1", ToolName: protocol.ToolSearchContent, Input: json.RawMessage(`{"query":"x"}`)},
		protocol.ToolOutputAvailable{ToolCallID: "c1", ToolName: protocol.ToolSearchContent, Output: json.RawMessage(`{"results":[]}`)},
		protocol.ToolOutputError{ToolCallID: "c1", ErrorText: "late error"},
		protocol.ToolInputAvailable{ToolCallID: "c1", ToolName: protocol.ToolSearchContent, Input: json.RawMessage(`{"query":"again"}`)},
		protocol.ToolOutputAvailable{ToolCallID: "c1", ToolName: protocol.ToolSearchContent, Output: json.RawMessage(`{"results":[{"id":"v"}]}`)},
	)

	require.Len(t, s.ToolInvocations, 1)
	inv := s.ToolInvocations[0]
	assert.Equal(t, InvocationCompleted, inv.State)
	assert.Empty(t, inv.ErrorText)
	assert.JSONEq(t, `{"results":[]}`, string(inv.RawOutput))
	assert.IsType(t, protocol.SearchContentInput{}, inv.Input)
	assert.IsType(t, protocol.SearchContentOutput{}, inv.Output)
}

func TestToolOutputErrorMarksInvocation(t *testing.T) {
	s := applyAll(streaming(),
		protocol.ToolInputAvailable{ToolCallID: "c1", ToolName: protocol.ToolCreateCourse, Input: json.RawMessage(`{}`)},
		protocol.ToolOutputError{ToolCallID: "c1", ErrorText: "preview not confirmed"},
		protocol.ToolOutputAvailable{ToolCallID: "c1", ToolName: protocol.ToolCreateCourse, Output: json.RawMessage(`{"courseId":"C"}`)},
	)
	inv, ok := s.Invocation("c1")
	require.True(t, ok)
	assert.Equal(t, InvocationError, inv.State)
	assert.Equal(t, "preview not confirmed", inv.ErrorText)
	assert.Nil(t, inv.Output)
}

// Scenario E.
func TestUnknownToolOutputIsNoop(t *testing.T) {
	before := applyAll(streaming(), protocol.TextDelta{Delta: "Hello"})
	after := Reduce(before, EventReceived{Event: protocol.ToolOutputAvailable{
		ToolCallID: "never-seen",
		ToolName:   protocol.ToolGenerateCoursePreview,
		Output:     json.RawMessage(`{"type":"course_preview","title":"Ghost"}`),
	}})

	assert.Equal(t, before, after)
	assert.Empty(t, after.ToolInvocations)
	assert.Nil(t, after.CoursePreview)
}

func TestPreviewReplacedWholesale(t *testing.T) {
	s := applyAll(streaming(),
		protocol.ToolInputAvailable{ToolCallID: "p1", ToolName: protocol.ToolGenerateCoursePreview},
		protocol.ToolOutputAvailable{ToolCallID: "p1", ToolName: protocol.ToolGenerateCoursePreview, Output: json.RawMessage(
			`{"type":"course_preview","title":"First","objectives":["a","b"],"features":["certificate"],"modules":[{"title":"m1","items":[]}]}`)},
	)
	require.NotNil(t, s.CoursePreview)
	assert.Equal(t, "First", s.CoursePreview.Title)

	s = applyAll(s,
		protocol.ToolInputAvailable{ToolCallID: "p2", ToolName: protocol.ToolGenerateCoursePreview},
		protocol.ToolOutputAvailable{ToolCallID: "p2", ToolName: protocol.ToolGenerateCoursePreview, Output: json.RawMessage(
			`{"type":"course_preview","title":"Second","modules":[]}`)},
	)
	require.NotNil(t, s.CoursePreview)
	assert.Equal(t, "Second", s.CoursePreview.Title)
	assert.Nil(t, s.CoursePreview.Objectives, "fields of the old preview do not survive")
	assert.Nil(t, s.CoursePreview.Features)
	assert.Empty(t, s.CoursePreview.Modules)
}

func TestPreviewIgnoresOtherDiscriminants(t *testing.T) {
	s := applyAll(streaming(),
		protocol.ToolInputAvailable{ToolCallID: "p1", ToolName: protocol.ToolGenerateCoursePreview},
		protocol.ToolOutputAvailable{ToolCallID: "p1", ToolName: protocol.ToolGenerateCoursePreview, Output: json.RawMessage(`{"type":"draft","title":"nope"}`)},
	)
	assert.Nil(t, s.CoursePreview)
	inv, _ := s.Invocation("p1")
	assert.Equal(t, InvocationCompleted, inv.State)
}

func TestFailureKeepsPartialContent(t *testing.T) {
	s := applyAll(streaming(), protocol.TextDelta{Delta: "Fou"})
	s = Reduce(s, StreamFailed{Err: errors.New("aborted")})

	assert.Equal(t, StatusError, s.Status)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "Fou", s.Messages[1].Content)
	_, active := s.ActiveMessage()
	assert.False(t, active)
}

func TestFailureDropsEmptyPlaceholder(t *testing.T) {
	s := Reduce(streaming(), StreamFailed{Err: errors.New("aborted")})

	assert.Equal(t, StatusError, s.Status)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, protocol.RoleUser, s.Messages[0].Role)
}

func TestStreamErrorEventFailsTurn(t *testing.T) {
	s := applyAll(streaming(), protocol.StreamError{ErrorText: "model unavailable"})
	assert.Equal(t, StatusError, s.Status)
	require.Error(t, s.Err)
	assert.Equal(t, "model unavailable", s.Err.Error())
	assert.Len(t, s.Messages, 1)
}

func TestEventsOutsideTurnAreIgnored(t *testing.T) {
	s := Reduce(Initial(), EventReceived{Event: protocol.TextDelta{Delta: "stray"}})
	assert.Equal(t, Initial(), s)

	done := applyAll(streaming(), protocol.TextDelta{Delta: "ok"}, protocol.Done{})
	assert.Equal(t, StatusIdle, done.Status)
	late := Reduce(done, EventReceived{Event: protocol.TextDelta{Delta: " more"}})
	assert.Equal(t, "ok", late.Messages[1].Content)
	assert.Equal(t, done, Reduce(done, StreamFailed{Err: errors.New("late")}))
}

func TestResetClearsEverything(t *testing.T) {
	s := applyAll(streaming(), protocol.TextDelta{Delta: "x"})
	assert.Equal(t, Initial(), Reduce(s, ResetRequested{}))
}

// Arbitrary event orderings never break the invariants: at most one assistant
// placeholder, no invocation without an input event, no state going back.
func TestReduceInvariantsUnderRandomOrderings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"c1", "c2", "c3"}

	for round := 0; round < 300; round++ {
		s := streaming()
		announced := map[string]bool{}
		terminal := map[string]InvocationState{}

		for step := 0; step < 25; step++ {
			id := ids[rng.Intn(len(ids))]
			var ev protocol.Event
			switch rng.Intn(4) {
			case 0:
				ev = protocol.TextDelta{Delta: "t"}
			case 1:
				ev = protocol.ToolInputAvailable{ToolCallID: id, ToolName: protocol.ToolSearchContent}
				announced[id] = true
			case 2:
				ev = protocol.ToolOutputAvailable{ToolCallID: id, ToolName: protocol.ToolSearchContent, Output: json.RawMessage(`{"results":[]}`)}
			case 3:
				ev = protocol.ToolOutputError{ToolCallID: id, ErrorText: "x"}
			}
			s = Reduce(s, EventReceived{Event: ev})

			for _, inv := range s.ToolInvocations {
				assert.True(t, announced[inv.ID], "invocation %s without input event", inv.ID)
				if prev, ok := terminal[inv.ID]; ok {
					assert.Equal(t, prev, inv.State, "terminal state changed for %s", inv.ID)
				} else if inv.State != InvocationPending {
					terminal[inv.ID] = inv.State
				}
			}
			assert.Equal(t, StatusStreaming, s.Status)
			assert.Len(t, s.Messages, 2)
		}
	}
}
