package protocol

import (
	"encoding/json"
	"strings"
)

// ParseLine decodes one stream line. It reports false for every line that does
// not carry a recognised event: blank lines, comments, other framing, unknown
// discriminants and malformed payloads. A bad line never aborts the stream.
func ParseLine(line string) (Event, bool) {
	payload, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return nil, false
	}
	payload = strings.TrimSpace(payload)
	if payload == DoneSentinel {
		return Done{}, true
	}
	if payload == "" {
		return nil, false
	}

	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, false
	}

	switch w.Type {
	case TypeTextDelta:
		if w.Delta == nil {
			return nil, false
		}
		return TextDelta{Delta: *w.Delta}, true
	case TypeToolInputAvailable:
		if w.ToolCallID == "" {
			return nil, false
		}
		return ToolInputAvailable{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Input: w.Input}, true
	case TypeToolOutputAvailable:
		if w.ToolCallID == "" {
			return nil, false
		}
		return ToolOutputAvailable{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Output: w.Output}, true
	case TypeToolOutputError:
		if w.ToolCallID == "" {
			return nil, false
		}
		return ToolOutputError{ToolCallID: w.ToolCallID, ToolName: w.ToolName, ErrorText: w.ErrorText}, true
	case TypeError:
		return StreamError{ErrorText: w.ErrorText}, true
	default:
		return nil, false
	}
}
