package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
	"github.com/agusgarcia3007/learnbase/backend/pkg/stream"
)

var (
	ErrAlreadyStreaming = errors.New("a turn is already streaming")
	ErrNotStreaming     = errors.New("no turn is streaming")
	ErrClosed           = errors.New("session closed")
	ErrEmptyMessage     = errors.New("message content is required")
)

// Session is the handle of one client-side conversation. It owns the state,
// serialises every mutation and admits a single stream consumer at a time.
type Session struct {
	mu             sync.Mutex
	state          State
	conversationID string
	consuming      bool
	closed         bool

	onChange func(State)
	newID    func() string
}

// Option configures a Session.
type Option func(*Session)

// WithOnChange registers a callback invoked with every new state. It runs on
// the goroutine that caused the change, outside the session lock.
func WithOnChange(fn func(State)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) {
		s.newID = fn
	}
}

// NewSession starts an empty conversation.
func NewSession(opts ...Option) *Session {
	s := &Session{
		state: Initial(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the server-side conversation id, if one is known.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversationID records the server-side conversation id.
func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// Begin submits a user message and opens the assistant placeholder. It fails
// with ErrAlreadyStreaming while a previous turn is still active.
func (s *Session) Begin(content string, attachments []protocol.Attachment) error {
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Status == StatusStreaming {
		s.mu.Unlock()
		return ErrAlreadyStreaming
	}
	s.state = Reduce(s.state, Submitted{
		User:        Message{ID: s.newID(), Content: content, Attachments: attachments},
		AssistantID: s.newID(),
	})
	next := s.state
	s.mu.Unlock()

	s.notify(next)
	return nil
}

// Apply feeds one event into the conversation.
func (s *Session) Apply(ev protocol.Event) {
	s.dispatch(EventReceived{Event: ev})
}

// Fail ends the active turn with err.
func (s *Session) Fail(err error) {
	s.dispatch(StreamFailed{Err: err})
}

// Reset clears the conversation and forgets the server-side id.
func (s *Session) Reset() {
	s.mu.Lock()
	s.conversationID = ""
	s.mu.Unlock()
	s.dispatch(ResetRequested{})
}

// Close tears the session down. Later calls to Begin return ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Consume reads the event stream of the active turn from r until the done
// sentinel, the end of the transport or a failure. Cancelling ctx is observed
// between lines; callers that need to interrupt a blocked read must close r.
func (s *Session) Consume(ctx context.Context, r io.Reader) error {
	s.mu.Lock()
	if s.state.Status != StatusStreaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	if s.consuming {
		s.mu.Unlock()
		return ErrAlreadyStreaming
	}
	s.consuming = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.consuming = false
		s.mu.Unlock()
	}()

	lines := stream.NewLineReader(r)
	for {
		if err := ctx.Err(); err != nil {
			s.Fail(err)
			return err
		}

		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			s.dispatch(StreamEnded{})
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			s.Fail(err)
			return fmt.Errorf("read stream: %w", err)
		}

		ev, ok := protocol.ParseLine(line)
		if !ok {
			continue
		}
		next := s.dispatch(EventReceived{Event: ev})

		switch e := ev.(type) {
		case protocol.Done:
			return nil
		case protocol.StreamError:
			return fmt.Errorf("agent error: %s", e.ErrorText)
		}
		if next.Status != StatusStreaming {
			return next.Err
		}
	}
}

func (s *Session) dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	next := s.state
	s.mu.Unlock()

	s.notify(next)
	return next
}

func (s *Session) notify(st State) {
	if s.onChange != nil {
		s.onChange(st)
	}
}
