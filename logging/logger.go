// Package logging is the structured logger shared by the runitdb SDK and CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Logger writes events to the terminal, an optional JSONL file sink and any
// subscribers. Loggers derived with With share one output state. All methods
// are safe on a nil *Logger except Subscribe.
type Logger struct {
	core  *core
	attrs []slog.Attr
}

type core struct {
	level    slog.LevelVar
	terminal atomic.Bool

	mu     sync.RWMutex
	out    io.Writer
	pretty bool
	sink   *fileSink
	subs   []*subscriber

	writeMu sync.Mutex
}

type subscriber struct {
	fn func(Event)
}

type Event struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Fields  map[string]any
}

// New returns a logger writing to stderr. Debug events are shown only when
// debug is true.
func New(debug bool) *Logger {
	c := &core{out: os.Stderr, pretty: colorOutput(os.Stderr)}
	c.terminal.Store(true)
	l := &Logger{core: c}
	l.SetDebugEnabled(debug)
	return l
}

// Quiet returns a logger with terminal output disabled. Events still reach
// subscribers and the file sink when one is enabled.
func Quiet() *Logger {
	l := New(false)
	l.core.terminal.Store(false)
	return l
}

func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// With returns a logger that adds attrs to every event.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{core: l.core, attrs: append(slices.Clip(l.attrs), attrs...)}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	l.log(slog.LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	l.log(slog.LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	l.log(slog.LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...slog.Attr) {
	l.log(slog.LevelError, msg, fields)
}

func (l *Logger) SetDebugEnabled(enabled bool) {
	if enabled {
		l.SetLevel(slog.LevelDebug)
		return
	}
	l.SetLevel(slog.LevelInfo)
}

// SetLevel sets the lowest level shown on the terminal and to subscribers.
// The file sink receives every level.
func (l *Logger) SetLevel(level slog.Level) {
	if l == nil {
		return
	}
	l.core.level.Set(level)
}

func (l *Logger) SetTerminalOutputEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.core.terminal.Store(enabled)
}

// SetOutput redirects terminal output. Colour is used only when w is a
// terminal.
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil || w == nil {
		return
	}
	l.core.mu.Lock()
	l.core.out = w
	l.core.pretty = colorOutput(w)
	l.core.mu.Unlock()
}

// EnableFilePersistence starts writing JSONL logs under DefaultLogDirPath,
// rotating files at maxBytes (5 MiB when zero).
func (l *Logger) EnableFilePersistence(maxBytes int64) error {
	if l == nil {
		return nil
	}
	sink, err := newFileSink(maxBytes)
	if err != nil {
		return err
	}
	l.core.mu.Lock()
	old := l.core.sink
	l.core.sink = sink
	l.core.mu.Unlock()
	return old.Close()
}

// Close stops file persistence. Terminal output continues.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.core.mu.Lock()
	sink := l.core.sink
	l.core.sink = nil
	l.core.mu.Unlock()
	return sink.Close()
}

// Subscribe registers fn for every event at or above the current level and
// returns the function that removes it.
func (l *Logger) Subscribe(fn func(Event)) func() {
	if l == nil {
		panic("logging.Logger.Subscribe: logger must not be nil")
	}
	if fn == nil {
		panic("logging.Logger.Subscribe: callback must not be nil")
	}
	sub := &subscriber{fn: fn}
	c := l.core
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.subs = slices.DeleteFunc(c.subs, func(s *subscriber) bool { return s == sub })
		c.mu.Unlock()
	}
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr) {
	if l == nil {
		return
	}
	if len(l.attrs) > 0 {
		attrs = append(slices.Clip(l.attrs), attrs...)
	}
	event := Event{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  fieldsFromAttrs(attrs),
	}

	c := l.core
	c.mu.RLock()
	sink, out, pretty := c.sink, c.out, c.pretty
	subs := slices.Clone(c.subs)
	c.mu.RUnlock()

	if sink != nil {
		_ = sink.WriteEvent(event)
	}
	if level < c.level.Level() {
		return
	}
	if c.terminal.Load() {
		c.write(out, pretty, event)
	}
	for _, sub := range subs {
		sub.fn(event)
	}
}

func (c *core) write(out io.Writer, pretty bool, event Event) {
	var line string
	if pretty {
		line = FormatEventANSI(event)
	} else {
		line = FormatEventLine(event)
	}
	c.writeMu.Lock()
	_, _ = io.WriteString(out, line)
	c.writeMu.Unlock()
}
