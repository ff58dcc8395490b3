package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/agusgarcia3007/learnbase/backend/pkg/conversation"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// renderer prints the difference between successive session states.
type renderer struct {
	out      io.Writer
	activeID string
	printed  int
	midLine  bool
	tools    map[string]conversation.InvocationState
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, tools: make(map[string]conversation.InvocationState)}
}

func (r *renderer) onChange(st conversation.State) {
	if msg, ok := st.ActiveMessage(); ok {
		if msg.ID != r.activeID {
			r.activeID = msg.ID
			r.printed = 0
			r.tools = make(map[string]conversation.InvocationState)
			fmt.Fprint(r.out, color.CyanString("assistant> "))
			r.midLine = true
		}
		if len(msg.Content) > r.printed {
			fmt.Fprint(r.out, msg.Content[r.printed:])
			r.printed = len(msg.Content)
			r.midLine = !strings.HasSuffix(msg.Content, "\n")
		}
	}

	for _, inv := range st.ToolInvocations {
		if prev, seen := r.tools[inv.ID]; seen && prev == inv.State {
			continue
		}
		r.tools[inv.ID] = inv.State
		r.line(formatInvocation(inv))
		if inv.State == conversation.InvocationCompleted && inv.ToolName == protocol.ToolGenerateCoursePreview && st.CoursePreview != nil {
			r.line(formatPreview(*st.CoursePreview))
		}
	}

	switch st.Status {
	case conversation.StatusIdle:
		if r.activeID != "" {
			r.endLine()
			r.activeID = ""
		}
	case conversation.StatusError:
		if r.activeID != "" {
			r.line(color.RedString("error: %v", st.Err))
			r.activeID = ""
		}
	}
}

func (r *renderer) line(s string) {
	r.endLine()
	fmt.Fprintln(r.out, s)
}

func (r *renderer) endLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

func formatInvocation(inv conversation.ToolInvocation) string {
	switch inv.State {
	case conversation.InvocationPending:
		return fmt.Sprintf("  %s %s %s", color.YellowString("…"), color.HiBlackString(inv.ID), summarize(inv.ToolName, inv.RawInput))
	case conversation.InvocationError:
		return fmt.Sprintf("  %s %s %s", color.RedString("✗"), inv.ToolName, color.RedString(inv.ErrorText))
	}
	if e, ok := inv.Output.(protocol.ToolErrorOutput); ok {
		return fmt.Sprintf("  %s %s %s", color.RedString("✗"), inv.ToolName, color.RedString(e.Error))
	}
	return fmt.Sprintf("  %s %s %s", color.GreenString("✓"), inv.ToolName, describeOutput(inv.Output))
}

func summarize(name string, raw json.RawMessage) string {
	args := strings.TrimSpace(string(raw))
	if len(args) > 80 {
		args = args[:77] + "..."
	}
	return name + " " + args
}

func describeOutput(out protocol.ToolOutput) string {
	switch o := out.(type) {
	case protocol.SearchContentOutput:
		return fmt.Sprintf("%d results", len(o.Results))
	case protocol.CreateQuizOutput:
		return fmt.Sprintf("quiz %s (%s, %d questions)", o.QuizID, o.Status, o.QuestionCount)
	case protocol.CreateModuleOutput:
		return fmt.Sprintf("module %s (%s, %d items)", o.ModuleID, o.Status, o.ItemCount)
	case protocol.CoursePreviewOutput:
		return fmt.Sprintf("preview %q", o.Title)
	case protocol.CreateCourseOutput:
		return fmt.Sprintf("course %s (%s, %d modules)", o.CourseID, o.Status, o.ModuleCount)
	default:
		return "done"
	}
}

func formatPreview(p protocol.CoursePreview) string {
	var sb strings.Builder
	sb.WriteString(color.New(color.Bold).Sprintf("  ┌ %s", p.Title))
	if p.Level != "" {
		fmt.Fprintf(&sb, " [%s]", p.Level)
	}
	if p.ShortDescription != "" {
		fmt.Fprintf(&sb, "\n  │ %s", p.ShortDescription)
	}
	for i, m := range p.Modules {
		fmt.Fprintf(&sb, "\n  │ %d. %s", i+1, m.Title)
		for _, item := range m.Items {
			fmt.Fprintf(&sb, "\n  │    - %s %s", color.HiBlackString(string(item.Type)), item.Title)
		}
	}
	sb.WriteString("\n  └ confirm to create the course")
	return sb.String()
}
