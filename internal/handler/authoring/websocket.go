package authoring

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

const (
	writeWait = 10 * time.Second

	// close frame payloads are capped at 125 bytes, two of them for the code
	maxCloseReason = 120
)

// socketEmitter sends every event line as its own text message.
type socketEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *socketEmitter) Emit(ev protocol.Event) error {
	line, err := protocol.FormatLine(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := e.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

func (e *socketEmitter) close(code int, reason string) {
	reason = truncateReason(reason, maxCloseReason)
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

// truncateReason cuts s to at most max bytes without splitting a character.
func truncateReason(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
