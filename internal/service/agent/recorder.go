package agent

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// ToolCallRecord describes one executed tool call.
type ToolCallRecord struct {
	TenantID       string          `json:"tenantId"`
	UserID         string          `json:"userId"`
	ConversationID string          `json:"conversationId"`
	Step           int             `json:"step"`
	ToolCallID     string          `json:"toolCallId"`
	ToolName       string          `json:"toolName"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	Duration       time.Duration   `json:"durationNs"`
	StartedAt      time.Time       `json:"startedAt"`
}

// Recorder receives every tool call of a turn. Implementations must be safe
// for concurrent use.
type Recorder interface {
	RecordToolCall(ctx context.Context, rec ToolCallRecord)
}

// LogRecorder writes a one-line summary per call to the standard logger.
type LogRecorder struct{}

func (LogRecorder) RecordToolCall(_ context.Context, rec ToolCallRecord) {
	if rec.Error != "" {
		log.Printf("[agent] tool=%s id=%s step=%d tenant=%s conversation=%s duration=%s error=%q",
			rec.ToolName, rec.ToolCallID, rec.Step, rec.TenantID, rec.ConversationID, rec.Duration, rec.Error)
		return
	}
	log.Printf("[agent] tool=%s id=%s step=%d tenant=%s conversation=%s duration=%s output_bytes=%d",
		rec.ToolName, rec.ToolCallID, rec.Step, rec.TenantID, rec.ConversationID, rec.Duration, len(rec.Output))
}

// Recorders fans a record out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordToolCall(ctx context.Context, rec ToolCallRecord) {
	for _, r := range rs {
		if r != nil {
			r.RecordToolCall(ctx, rec)
		}
	}
}
