package agent

import "github.com/agusgarcia3007/learnbase/backend/pkg/protocol"

// StatusPolicy maps a creating tool to the status of the record it persists.
type StatusPolicy map[string]protocol.Status

// DefaultStatusPolicy publishes building blocks right away and keeps courses
// as drafts for a later review.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{
		protocol.ToolCreateQuiz:   protocol.StatusPublished,
		protocol.ToolCreateModule: protocol.StatusPublished,
		protocol.ToolCreateCourse: protocol.StatusDraft,
	}
}

// StatusFor returns the status for records created by toolName. Unknown tools
// get draft.
func (p StatusPolicy) StatusFor(toolName string) protocol.Status {
	if status, ok := p[toolName]; ok {
		return status
	}
	return protocol.StatusDraft
}
