// Package audit keeps an NDJSON trail of the tool calls made by the
// authoring agent, one file per tenant conversation.
package audit

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agusgarcia3007/learnbase/backend/internal/service/agent"
)

const (
	defaultQueueSize    = 256
	defaultMaxOpenFiles = 64
)

// Config controls the tool call trail.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
	// MaxOpenFiles bounds the conversation files kept open; the least
	// recently written one is closed first.
	MaxOpenFiles int
}

type openFile struct {
	path string
	f    *os.File
}

// Logger writes tool call records asynchronously. Records are dropped, not
// blocked on, when the queue is full.
type Logger struct {
	queue   chan agent.ToolCallRecord
	dir     string
	maxOpen int
	files   map[string]*list.Element
	lru     *list.List
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewLogger creates the logger and starts its writer. A disabled config
// yields a nil Logger, which is a valid no-op recorder.
func NewLogger(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("audit dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	maxOpen := cfg.MaxOpenFiles
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenFiles
	}

	l := newLogger(cfg.Dir, size, maxOpen)
	go l.run()
	return l, nil
}

func newLogger(dir string, queueSize, maxOpen int) *Logger {
	return &Logger{
		queue:   make(chan agent.ToolCallRecord, queueSize),
		dir:     dir,
		maxOpen: maxOpen,
		files:   make(map[string]*list.Element),
		lru:     list.New(),
		done:    make(chan struct{}),
	}
}

// RecordToolCall enqueues rec.
func (l *Logger) RecordToolCall(_ context.Context, rec agent.ToolCallRecord) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- rec:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("[audit] queue full, dropped %d records", n)
		}
	}
}

// Dropped returns the number of records lost to a full queue.
func (l *Logger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close flushes pending records and closes every file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	defer l.closeAll()

	for rec := range l.queue {
		if err := l.write(rec); err != nil {
			log.Printf("[audit] write record tool=%s conversation=%s: %v", rec.ToolName, rec.ConversationID, err)
		}
	}
}

func (l *Logger) write(rec agent.ToolCallRecord) error {
	f, err := l.file(l.pathFor(rec.TenantID, rec.ConversationID))
	if err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

// file returns the open handle for path, evicting the least recently
// written file once maxOpen handles are held.
func (l *Logger) file(path string) (*os.File, error) {
	if el, ok := l.files[path]; ok {
		l.lru.MoveToFront(el)
		return el.Value.(*openFile).f, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	for l.lru.Len() >= l.maxOpen {
		l.evict(l.lru.Back())
	}
	l.files[path] = l.lru.PushFront(&openFile{path: path, f: f})
	return f, nil
}

func (l *Logger) evict(el *list.Element) {
	of := l.lru.Remove(el).(*openFile)
	delete(l.files, of.path)
	if err := of.f.Close(); err != nil {
		log.Printf("[audit] close %s: %v", of.path, err)
	}
}

func (l *Logger) closeAll() {
	for l.lru.Len() > 0 {
		l.evict(l.lru.Back())
	}
}

// PathFor returns the file that holds the records of one conversation.
func (l *Logger) PathFor(tenantID, conversationID string) string {
	return l.pathFor(tenantID, conversationID)
}

func (l *Logger) pathFor(tenantID, conversationID string) string {
	return filepath.Join(l.dir, safeName(tenantID, "unknown-tenant"), safeName(conversationID, "unknown-conversation")+".ndjson")
}

func safeName(s, fallback string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if strings.Trim(s, "_") == "" {
		return fallback
	}
	return s
}
