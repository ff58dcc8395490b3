// Package agent runs the course authoring loop: it streams the chat model,
// executes the tool calls it requests and emits protocol events for each
// step.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

var (
	ErrForbidden        = errors.New("course authoring requires an owner or admin role")
	ErrToolsUnsupported = errors.New("chat model does not support tool calling")
	ErrEmit             = errors.New("emit event")
)

const (
	DefaultMaxSteps     = 10
	DefaultHistoryLimit = 20
)

// Emitter receives the events of a turn in order.
type Emitter interface {
	Emit(ev protocol.Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(protocol.Event) error

func (f EmitterFunc) Emit(ev protocol.Event) error { return f(ev) }

// Turn is one user request to the agent.
type Turn struct {
	Scope       Scope
	Role        user.Role
	History     []protocol.ChatMessage
	Attachments []protocol.Attachment
	Gate        GateStatus
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithMaxSteps bounds the number of model calls per turn.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithHistoryLimit bounds the prior messages sent to the model.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) { o.historyLimit = n }
}

// WithRecorder sets the tool call recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithPromptTemplate overrides the authoring instructions.
func WithPromptTemplate(t PromptTemplate) Option {
	return func(o *Orchestrator) { o.template = t }
}

// Orchestrator drives the multi-step tool loop.
type Orchestrator struct {
	model        model.BaseChatModel
	tools        map[string]tool.InvokableTool
	maxSteps     int
	historyLimit int
	template     PromptTemplate
	prompt       *PromptBuilder
	recorder     Recorder
}

// NewOrchestrator binds tools to chatModel.
func NewOrchestrator(ctx context.Context, chatModel model.BaseChatModel, tools []tool.InvokableTool, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		tools:        make(map[string]tool.InvokableTool, len(tools)),
		maxSteps:     DefaultMaxSteps,
		historyLimit: DefaultHistoryLimit,
		template:     DefaultPromptTemplate(),
		recorder:     LogRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.prompt = NewPromptBuilder(o.template, o.historyLimit)

	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if _, dup := o.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", info.Name)
		}
		o.tools[info.Name] = t
		infos = append(infos, info)
	}

	switch m := chatModel.(type) {
	case model.ToolCallingChatModel:
		bound, err := m.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		o.model = bound
	case model.ChatModel:
		if err := m.BindTools(infos); err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		o.model = m
	default:
		return nil, ErrToolsUnsupported
	}

	return o, nil
}

// MaxSteps returns the step budget of a turn.
func (o *Orchestrator) MaxSteps() int {
	return o.maxSteps
}

// syncEmitter serializes emission and remembers the first failure.
type syncEmitter struct {
	mu   sync.Mutex
	next Emitter
	err  error
}

func (e *syncEmitter) Emit(ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if err := e.next.Emit(ev); err != nil {
		e.err = fmt.Errorf("%w: %w", ErrEmit, err)
	}
	return e.err
}

func (e *syncEmitter) failed() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Run executes one turn. Exhausting the step budget is not an error; done is
// emitted after every loop that did not fail. A model failure is emitted as
// an error event and returned.
func (o *Orchestrator) Run(ctx context.Context, turn Turn, emitter Emitter) error {
	if !turn.Role.Elevated() {
		return ErrForbidden
	}
	if turn.Scope.TenantID == "" {
		return ErrScopeMissing
	}

	ctx = WithScope(ctx, turn.Scope)
	emit := &syncEmitter{next: emitter}
	messages := o.prompt.BuildMessages(turn.Scope, turn.Gate, turn.History, turn.Attachments)

	for step := 0; step < o.maxSteps; step++ {
		reply, err := o.streamStep(ctx, messages, emit)
		if err != nil {
			if emitErr := emit.failed(); emitErr != nil {
				return emitErr
			}
			log.Printf("[agent] model step=%d conversation=%s failed: %v", step, turn.Scope.ConversationID, err)
			_ = emit.Emit(protocol.StreamError{ErrorText: err.Error()})
			return fmt.Errorf("model step %d: %w", step, err)
		}

		if len(reply.ToolCalls) == 0 {
			break
		}
		assignCallIDs(reply, step)
		messages = append(messages, reply)

		results, err := o.runTools(ctx, step, turn.Scope, reply.ToolCalls, emit)
		if err != nil {
			return err
		}
		messages = append(messages, results...)

		if step == o.maxSteps-1 {
			log.Printf("[agent] conversation=%s reached the step budget of %d", turn.Scope.ConversationID, o.maxSteps)
		}
	}

	return emit.Emit(protocol.Done{})
}

func (o *Orchestrator) streamStep(ctx context.Context, messages []*schema.Message, emit Emitter) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := o.model.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("stream model: %w", err)
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive chunk: %w", err)
		}
		if chunk == nil {
			continue
		}
		if chunk.Content != "" {
			if err := emit.Emit(protocol.TextDelta{Delta: chunk.Content}); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	reply, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("concat chunks: %w", err)
	}
	return reply, nil
}

// assignCallIDs makes sure every tool call can be correlated.
func assignCallIDs(reply *schema.Message, step int) {
	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", step, i)
		}
	}
}

type toolResult struct {
	output string
	err    error
}

// runTools announces every call, runs them concurrently, emits each result as
// it completes and returns the tool messages in call order.
func (o *Orchestrator) runTools(ctx context.Context, step int, scope Scope, calls []schema.ToolCall, emit *syncEmitter) ([]*schema.Message, error) {
	for _, call := range calls {
		err := emit.Emit(protocol.ToolInputAvailable{
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			Input:      asJSON(call.Function.Arguments),
		})
		if err != nil {
			return nil, err
		}
	}

	results := make([]toolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()

			started := time.Now()
			output, err := o.invoke(ctx, call)
			results[i] = toolResult{output: output, err: err}

			rec := ToolCallRecord{
				TenantID:       scope.TenantID,
				UserID:         scope.UserID,
				ConversationID: scope.ConversationID,
				Step:           step,
				ToolCallID:     call.ID,
				ToolName:       call.Function.Name,
				Arguments:      asJSON(call.Function.Arguments),
				Duration:       time.Since(started),
				StartedAt:      started,
			}
			if err != nil {
				rec.Error = err.Error()
				_ = emit.Emit(protocol.ToolOutputError{ToolCallID: call.ID, ToolName: call.Function.Name, ErrorText: err.Error()})
			} else {
				rec.Output = asJSON(output)
				_ = emit.Emit(protocol.ToolOutputAvailable{ToolCallID: call.ID, ToolName: call.Function.Name, Output: rec.Output})
			}
			o.recorder.RecordToolCall(ctx, rec)
		}(i, call)
	}
	wg.Wait()

	if err := emit.failed(); err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, len(calls))
	for i, call := range calls {
		content := results[i].output
		if results[i].err != nil {
			content = errorContent(results[i].err)
		}
		messages[i] = schema.ToolMessage(content, call.ID)
	}
	return messages, nil
}

func (o *Orchestrator) invoke(ctx context.Context, call schema.ToolCall) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Function.Name, r)
		}
	}()

	t, ok := o.tools[call.Function.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Function.Name)
	}
	return t.InvokableRun(ctx, call.Function.Arguments)
}

// asJSON returns raw when it is valid JSON, an empty object when blank, and a
// JSON string otherwise.
func asJSON(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

func errorContent(err error) string {
	raw, _ := json.Marshal(protocol.ToolErrorOutput{Error: err.Error()})
	return string(raw)
}
