package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func encodeStream(t *testing.T, events ...protocol.Event) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(": stream opened\n\n")
	for _, ev := range events {
		line, err := protocol.FormatLine(ev)
		require.NoError(t, err)
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return b.String()
}

func scenarioA(t *testing.T) string {
	return encodeStream(t,
		protocol.ToolInputAvailable{ToolCallID: "call-search", ToolName: protocol.ToolSearchContent, Input: json.RawMessage(`{"query":"X"}`)},
		protocol.ToolOutputAvailable{ToolCallID: "call-search", ToolName: protocol.ToolSearchContent, Output: json.RawMessage(
			`{"results":[{"type":"video","id":"v1","title":"X intro"},{"type":"video","id":"v2","title":"X deep dive ✓"}]}`)},
		protocol.TextDelta{Delta: "Fou"},
		protocol.TextDelta{Delta: "nd 2 vídeos"},
		protocol.TextDelta{Delta: "..."},
		protocol.ToolInputAvailable{ToolCallID: "call-module", ToolName: protocol.ToolCreateModule, Input: json.RawMessage(
			`{"title":"Basics","items":[{"type":"video","id":"v1","order":0,"isPreview":true},{"type":"video","id":"v2","order":1,"isPreview":false}]}`)},
		protocol.ToolOutputAvailable{ToolCallID: "call-module", ToolName: protocol.ToolCreateModule, Output: json.RawMessage(
			`{"moduleId":"M1","title":"Basics","status":"published","itemCount":2}`)},
		protocol.ToolInputAvailable{ToolCallID: "call-preview", ToolName: protocol.ToolGenerateCoursePreview, Input: json.RawMessage(`{"title":"X 101","modules":[]}`)},
		protocol.ToolOutputAvailable{ToolCallID: "call-preview", ToolName: protocol.ToolGenerateCoursePreview, Output: json.RawMessage(
			`{"type":"course_preview","title":"X 101","level":"beginner","modules":[{"id":"M1","title":"Basics","items":[{"type":"video","id":"v1","title":"X intro"}]}]}`)},
		protocol.Done{},
	)
}

func runScenario(t *testing.T, r io.Reader) (State, error) {
	t.Helper()
	sess := NewSession(WithIDGenerator(sequentialIDs()))
	require.NoError(t, sess.Begin("make me a course on X", nil))
	err := sess.Consume(context.Background(), r)
	return sess.Snapshot(), err
}

func assertScenarioAEndState(t *testing.T, s State) {
	t.Helper()
	assert.Equal(t, StatusIdle, s.Status)
	assert.NoError(t, s.Err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, protocol.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "make me a course on X", s.Messages[0].Content)
	assert.Equal(t, protocol.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "Found 2 vídeos...", s.Messages[1].Content)

	require.Len(t, s.ToolInvocations, 3)
	for _, inv := range s.ToolInvocations {
		assert.Equal(t, InvocationCompleted, inv.State, inv.ID)
	}
	module, ok := s.ToolInvocations[1].Output.(protocol.CreateModuleOutput)
	require.True(t, ok)
	assert.Equal(t, "M1", module.ModuleID)

	require.NotNil(t, s.CoursePreview)
	assert.Equal(t, "X 101", s.CoursePreview.Title)
	assert.Equal(t, []string{"M1"}, s.CoursePreview.ModuleIDs())
	raw, err := json.Marshal(s.CoursePreview)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "course_preview", "type field is stripped")
}

func TestScenarioASingleChunk(t *testing.T) {
	s, err := runScenario(t, strings.NewReader(scenarioA(t)))
	require.NoError(t, err)
	assertScenarioAEndState(t, s)
}

func TestScenarioBOneByteChunks(t *testing.T) {
	whole, err := runScenario(t, strings.NewReader(scenarioA(t)))
	require.NoError(t, err)

	split, err := runScenario(t, iotest.OneByteReader(strings.NewReader(scenarioA(t))))
	require.NoError(t, err)

	assertScenarioAEndState(t, split)
	assert.Equal(t, whole, split)
}

func TestScenarioCAbortKeepsPartialReply(t *testing.T) {
	abort := errors.New("connection reset by peer")
	r := io.MultiReader(strings.NewReader(encodeStream(t, protocol.TextDelta{Delta: "Fou"})), iotest.ErrReader(abort))

	s, err := runScenario(t, r)
	require.ErrorIs(t, err, abort)
	assert.Equal(t, StatusError, s.Status)
	assert.ErrorIs(t, s.Err, abort)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "Fou", s.Messages[1].Content)
}

func TestScenarioDAbortDropsEmptyReply(t *testing.T) {
	abort := errors.New("aborted")
	s, err := runScenario(t, iotest.ErrReader(abort))
	require.ErrorIs(t, err, abort)
	assert.Equal(t, StatusError, s.Status)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, protocol.RoleUser, s.Messages[0].Role)
}

func TestConsumeTreatsTransportCloseAsEnd(t *testing.T) {
	s, err := runScenario(t, strings.NewReader(encodeStream(t, protocol.TextDelta{Delta: "partial but clean"})))
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, "partial but clean", s.Messages[1].Content)
}

func TestConsumeStopsAtDoneSentinel(t *testing.T) {
	body := encodeStream(t, protocol.TextDelta{Delta: "a"}, protocol.Done{}) + "data: {\"type\":\"text-delta\",\"delta\":\"b\"}\n"
	s, err := runScenario(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "a", s.Messages[1].Content)
}

func TestConsumeSkipsMalformedLines(t *testing.T) {
	body := "data: {\"type\":\"text-delta\",\"delta\":\"a\"}\n" +
		"data: {broken\n" +
		"data: {\"type\":\"reasoning-delta\",\"delta\":\"zzz\"}\n" +
		"event: ping\n" +
		"data: {\"type\":\"text-delta\",\"delta\":\"b\"}\n" +
		"data: [DONE]\n"
	s, err := runScenario(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, "ab", s.Messages[1].Content)
}

func TestConsumeReturnsAgentError(t *testing.T) {
	s, err := runScenario(t, strings.NewReader(encodeStream(t, protocol.TextDelta{Delta: "x"}, protocol.StreamError{ErrorText: "model down"})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model down")
	assert.Equal(t, StatusError, s.Status)
}

func TestConsumeHonoursCancelledContext(t *testing.T) {
	sess := NewSession()
	require.NoError(t, sess.Begin("hi", nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sess.Consume(ctx, strings.NewReader(scenarioA(t)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusError, sess.Snapshot().Status)
	assert.Len(t, sess.Snapshot().Messages, 1)
}

func TestBeginRejectsConcurrentSubmission(t *testing.T) {
	sess := NewSession()
	require.NoError(t, sess.Begin("first", nil))
	assert.ErrorIs(t, sess.Begin("second", nil), ErrAlreadyStreaming)
	assert.Len(t, sess.Snapshot().Messages, 2)

	require.NoError(t, sess.Consume(context.Background(), strings.NewReader("data: [DONE]\n")))
	assert.NoError(t, sess.Begin("second", nil))
}

func TestConsumeRequiresActiveTurn(t *testing.T) {
	sess := NewSession()
	assert.ErrorIs(t, sess.Consume(context.Background(), strings.NewReader("")), ErrNotStreaming)
}

func TestBeginRejectsEmptyContent(t *testing.T) {
	assert.ErrorIs(t, NewSession().Begin("", nil), ErrEmptyMessage)
}

func TestSessionLifecycle(t *testing.T) {
	var states []State
	sess := NewSession(WithOnChange(func(s State) { states = append(states, s) }))
	sess.SetConversationID("conv-1")

	require.NoError(t, sess.Begin("hi", []protocol.Attachment{{Name: "syllabus.pdf", URL: "https://files/s.pdf"}}))
	sess.Apply(protocol.TextDelta{Delta: "hello"})
	sess.Apply(protocol.Done{})
	require.Len(t, states, 3)
	assert.Equal(t, StatusIdle, states[2].Status)
	assert.Equal(t, "syllabus.pdf", sess.Snapshot().Messages[0].Attachments[0].Name)

	assert.Equal(t, []protocol.ChatMessage{
		{Role: protocol.RoleUser, Content: "hi"},
		{Role: protocol.RoleAssistant, Content: "hello"},
	}, sess.Snapshot().History())

	sess.Reset()
	assert.Equal(t, Initial(), sess.Snapshot())
	assert.Empty(t, sess.ConversationID())

	sess.Close()
	assert.ErrorIs(t, sess.Begin("again", nil), ErrClosed)
}
