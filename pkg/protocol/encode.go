package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// FormatLine renders ev as a single framed line without the trailing newline.
func FormatLine(ev Event) (string, error) {
	if _, ok := ev.(Done); ok {
		return DataPrefix + " " + DoneSentinel, nil
	}

	w, ok := toWire(ev)
	if !ok {
		return "", fmt.Errorf("unsupported event %T", ev)
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", w.Type, err)
	}
	return DataPrefix + " " + string(data), nil
}

// Encoder writes framed events to w and flushes after every frame when w
// supports it. It is safe for concurrent use.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	flusher, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: flusher}
}

// Encode writes ev followed by a blank line.
func (e *Encoder) Encode(ev Event) error {
	line, err := FormatLine(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := io.WriteString(e.w, line+"\n\n"); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Emit implements the orchestrator's event sink.
func (e *Encoder) Emit(ev Event) error {
	return e.Encode(ev)
}
