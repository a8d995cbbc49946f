// Package log keeps recent log records around for the monitor and sets up
// the daemon's log output.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultCapacity is how many records a TUIHandler keeps.
const DefaultCapacity = 50

// TUIHandler is a slog.Handler that remembers recent records and forwards
// them to a tea.Program. Forwarding never blocks: when the receiver is
// behind, the record is only kept in the history.
type TUIHandler struct {
	slog.Handler
	state *recordState
}

type recordState struct {
	mu       sync.Mutex
	ch       chan<- tea.Msg
	logs     []slog.Record
	capacity int
	dropped  int
}

// NewTUIHandler wraps handler. A nil ch only records.
func NewTUIHandler(handler slog.Handler, ch chan<- tea.Msg) *TUIHandler {
	return &TUIHandler{
		Handler: handler,
		state:   &recordState{ch: ch, capacity: DefaultCapacity},
	}
}

func (h *TUIHandler) Handle(ctx context.Context, r slog.Record) error {
	s := h.state
	s.mu.Lock()
	s.logs = append(s.logs, r.Clone())
	if len(s.logs) > s.capacity {
		s.logs = s.logs[len(s.logs)-s.capacity:]
	}
	if s.ch != nil {
		select {
		case s.ch <- LogMsg(r):
		default:
			s.dropped++
		}
	}
	s.mu.Unlock()

	return h.Handler.Handle(ctx, r)
}

func (h *TUIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TUIHandler{Handler: h.Handler.WithAttrs(attrs), state: h.state}
}

func (h *TUIHandler) WithGroup(name string) slog.Handler {
	return &TUIHandler{Handler: h.Handler.WithGroup(name), state: h.state}
}

// Logs returns a copy of the stored records, oldest first.
func (h *TUIHandler) Logs() []slog.Record {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	out := make([]slog.Record, len(h.state.logs))
	copy(out, h.state.logs)
	return out
}

// droppedCount returns how many records could not be forwarded.
func (h *TUIHandler) droppedCount() int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.dropped
}

// LogMsg is a tea.Msg that represents a log message.
type LogMsg slog.Record

// SetOutput sets the output channel for the handler.
func (h *TUIHandler) SetOutput(ch chan<- tea.Msg) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.ch = ch
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// NewFileWriter returns a size-rotated log file.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// Output is the configured logger and whatever must be closed with it.
type Output struct {
	Logger  *slog.Logger
	Handler *TUIHandler
	closer  io.Closer
}

// Close flushes the log file, if any.
func (o *Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// Setup builds the process logger. Records go to file when a path is given
// and to fallback otherwise, and are always kept for the monitor.
func Setup(level, file string, fallback io.Writer) (*Output, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	out := &Output{}
	w := fallback
	if file != "" {
		wc := NewFileWriter(file)
		w, out.closer = wc, wc
	}
	if w == nil {
		w = io.Discard
	}

	out.Handler = NewTUIHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}), nil)
	out.Logger = slog.New(out.Handler)
	return out, nil
}
