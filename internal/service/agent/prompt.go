package agent

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// GateStatus is the confirmation state shown to the model.
type GateStatus struct {
	PreviewCount        int
	PreviewTitle        string
	Confirmed           bool
	RequireConfirmation bool
}

// PromptTemplate defines the authoring instructions.
type PromptTemplate struct {
	SystemPrompt string
	Workflow     []string
	Rules        []string
}

// DefaultPromptTemplate returns the built-in course authoring instructions.
func DefaultPromptTemplate() PromptTemplate {
	return PromptTemplate{
		SystemPrompt: `You are the course authoring assistant of an online learning platform. You help instructors turn the videos, documents and quizzes they already uploaded into structured courses. Answer in the language the user writes in.`,
		Workflow: []string{
			"Search the catalog with searchContent to find material for the requested topic",
			"Create quizzes with createQuiz when an assessment is missing",
			"Group material into modules with createModule, using only ids returned by the tools",
			"Call generateCoursePreview with the full proposed course and ask the user to review it",
			"Call createCourse only after the user confirmed the latest preview",
		},
		Rules: []string{
			"Never invent asset ids; every module item must come from searchContent or createQuiz",
			"A quiz has between 3 and 5 questions with at least 2 options each",
			"Courses are created as drafts; tell the user they can publish it later",
			"When a tool returns an error, explain it briefly and adjust the plan",
		},
	}
}

// PromptBuilder renders the system prompt and the message list of a turn.
type PromptBuilder struct {
	template     PromptTemplate
	historyLimit int
}

// NewPromptBuilder creates a builder keeping at most historyLimit prior
// messages. Non-positive limits keep everything.
func NewPromptBuilder(template PromptTemplate, historyLimit int) *PromptBuilder {
	return &PromptBuilder{template: template, historyLimit: historyLimit}
}

// BuildSystemPrompt creates the system prompt for the scope and gate state.
func (pb *PromptBuilder) BuildSystemPrompt(scope Scope, gate GateStatus) string {
	tenant := scope.TenantID
	if scope.TenantSlug != "" {
		tenant = fmt.Sprintf("%s (%s)", scope.TenantSlug, scope.TenantID)
	}

	return fmt.Sprintf(`%s

Workspace: %s

Workflow:
- %s

Rules:
- %s

Preview state: %s`,
		pb.template.SystemPrompt,
		tenant,
		strings.Join(pb.template.Workflow, "\n- "),
		strings.Join(pb.template.Rules, "\n- "),
		describeGate(gate),
	)
}

func describeGate(gate GateStatus) string {
	switch {
	case gate.PreviewCount == 0:
		return "no preview has been generated in this conversation yet, so createCourse will fail."
	case gate.Confirmed:
		return fmt.Sprintf("the user confirmed the preview %q; you may call createCourse with it.", gate.PreviewTitle)
	case !gate.RequireConfirmation:
		return fmt.Sprintf("the preview %q was generated; create the course once the user agrees.", gate.PreviewTitle)
	default:
		return fmt.Sprintf("the preview %q is waiting for the user's confirmation; do not call createCourse yet.", gate.PreviewTitle)
	}
}

// BuildMessages assembles the eino input of a turn. Attachments are listed on
// the latest user message.
func (pb *PromptBuilder) BuildMessages(scope Scope, gate GateStatus, history []protocol.ChatMessage, attachments []protocol.Attachment) []*schema.Message {
	startIdx := 0
	if pb.historyLimit > 0 && len(history) > pb.historyLimit {
		startIdx = len(history) - pb.historyLimit
	}

	messages := make([]*schema.Message, 0, len(history)-startIdx+1)
	messages = append(messages, schema.SystemMessage(pb.BuildSystemPrompt(scope, gate)))

	lastUser := -1
	for _, msg := range history[startIdx:] {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case protocol.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
			lastUser = len(messages) - 1
		case protocol.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}

	if len(attachments) > 0 {
		note := describeAttachments(attachments)
		if lastUser >= 0 {
			messages[lastUser].Content += "\n\n" + note
		} else {
			messages = append(messages, schema.UserMessage(note))
		}
	}
	return messages
}

func describeAttachments(attachments []protocol.Attachment) string {
	var b strings.Builder
	b.WriteString("Attached files:")
	for _, a := range attachments {
		b.WriteString("\n- ")
		b.WriteString(a.Name)
		if a.MediaType != "" {
			fmt.Fprintf(&b, " (%s)", a.MediaType)
		}
		if a.URL != "" {
			b.WriteString(": ")
			b.WriteString(a.URL)
		}
	}
	return b.String()
}
