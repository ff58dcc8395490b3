package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agusgarcia3007/learnbase/backend/internal/service/agent"
)

func TestLoggerWritesPerConversationNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: true, Dir: dir, QueueSize: 16})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	ctx := context.Background()
	for i, name := range []string{"searchContent", "createModule"} {
		logger.RecordToolCall(ctx, agent.ToolCallRecord{
			TenantID:       "tenant-1",
			ConversationID: "conv-1",
			Step:           i,
			ToolCallID:     "call-" + name,
			ToolName:       name,
			Arguments:      json.RawMessage(`{"query":"go"}`),
			Output:         json.RawMessage(`{"results":[]}`),
			Duration:       time.Millisecond,
			StartedAt:      time.Now(),
		})
	}
	logger.RecordToolCall(ctx, agent.ToolCallRecord{TenantID: "tenant-2", ConversationID: "conv-9", ToolName: "createCourse", Error: "not confirmed"})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records := readRecords(t, filepath.Join(dir, "tenant-1", "conv-1.ndjson"))
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ToolName != "searchContent" || records[1].ToolName != "createModule" {
		t.Fatalf("records out of order: %+v", records)
	}

	other := readRecords(t, logger.PathFor("tenant-2", "conv-9"))
	if len(other) != 1 || other[0].Error != "not confirmed" {
		t.Fatalf("unexpected tenant-2 records: %+v", other)
	}

	// recording after close is a no-op
	logger.RecordToolCall(ctx, agent.ToolCallRecord{TenantID: "tenant-1", ConversationID: "conv-1"})
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestLoggerBoundsOpenFiles(t *testing.T) {
	dir := t.TempDir()
	l := newLogger(dir, 1, 4)

	const conversations = 50
	for round := 0; round < 2; round++ {
		for i := 0; i < conversations; i++ {
			rec := agent.ToolCallRecord{TenantID: "tenant-1", ConversationID: fmt.Sprintf("conv-%d", i), Step: round, ToolName: "searchContent"}
			if err := l.write(rec); err != nil {
				t.Fatalf("write %d: %v", i, err)
			}
			if len(l.files) > 4 || l.lru.Len() != len(l.files) {
				t.Fatalf("open files = %d (lru %d), want at most 4", len(l.files), l.lru.Len())
			}
		}
	}

	l.closeAll()
	if len(l.files) != 0 || l.lru.Len() != 0 {
		t.Fatalf("files left open after closeAll: %d", len(l.files))
	}

	// evicted files are reopened in append mode
	for _, i := range []int{0, 49} {
		records := readRecords(t, l.PathFor("tenant-1", fmt.Sprintf("conv-%d", i)))
		if len(records) != 2 || records[0].Step != 0 || records[1].Step != 1 {
			t.Fatalf("conv-%d: unexpected records %+v", i, records)
		}
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	logger, err := NewLogger(Config{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger != nil {
		t.Fatal("expected nil logger when disabled")
	}
	logger.RecordToolCall(context.Background(), agent.ToolCallRecord{})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close on nil logger: %v", err)
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"conv-1":     "conv-1",
		"../../etc":  "______etc",
		"":           "fallback",
		"///":        "fallback",
		"tenant a/b": "tenant_a_b",
	}
	for in, want := range cases {
		if got := safeName(in, "fallback"); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func readRecords(t *testing.T, path string) []agent.ToolCallRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []agent.ToolCallRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec agent.ToolCallRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		out = append(out, rec)
	}
	return out
}
