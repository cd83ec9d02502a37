package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
)

const (
	defaultLogFileMaxBytes = 5 << 20
	defaultLogFilesKept    = 10

	logFilePrefix = "runitdb-"
	logFileSuffix = ".jsonl"
)

// fileSink appends JSONL records to size-rotated files and prunes the
// oldest files beyond keep.
type fileSink struct {
	mu       sync.Mutex
	dir      string
	session  string
	maxBytes int64
	keep     int
	seq      int
	file     *os.File
	written  int64
	closed   bool
}

type logRecord struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// DefaultLogDirPath is where persisted logs go: <user cache dir>/runitdb/logs.
func DefaultLogDirPath() (string, error) {
	root, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "runitdb", "logs"), nil
}

func newFileSink(maxBytes int64) (*fileSink, error) {
	dir, err := DefaultLogDirPath()
	if err != nil {
		return nil, err
	}
	return openFileSink(dir, time.Now().UTC().Format("20060102-150405"), maxBytes, defaultLogFilesKept)
}

func openFileSink(dir, session string, maxBytes int64, keep int) (*fileSink, error) {
	if maxBytes <= 0 {
		maxBytes = defaultLogFileMaxBytes
	}
	if keep <= 0 {
		keep = defaultLogFilesKept
	}
	sink := &fileSink{dir: dir, session: session, maxBytes: maxBytes, keep: keep}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if err := sink.openNextLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *fileSink) WriteEvent(event Event) error {
	if s == nil {
		return nil
	}
	line, err := encodeRecord(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if s.file == nil || (s.written > 0 && s.written+int64(len(line)) > s.maxBytes) {
		if err := s.openNextLocked(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(line)
	s.written += int64(n)
	return err
}

func (s *fileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileSink) openNextLocked() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.seq++
	name := fmt.Sprintf("%s%s-%03d%s", logFilePrefix, s.session, s.seq, logFileSuffix)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file = f
	s.written = info.Size()
	s.pruneLocked(name)
	return nil
}

// pruneLocked removes the oldest log files so at most keep remain. File
// names sort chronologically; current is never removed.
func (s *fileSink) pruneLocked(current string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		names = append(names, name)
	}
	if len(names) <= s.keep {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.keep] {
		if name == current {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

func encodeRecord(event Event) ([]byte, error) {
	record := logRecord{
		Time:    event.Time.UTC().Format(time.RFC3339Nano),
		Level:   levelName(event.Level),
		Message: ansi.Strip(event.Message),
	}
	if len(event.Fields) > 0 {
		record.Fields = make(map[string]any, len(event.Fields))
		for key, value := range event.Fields {
			record.Fields[key] = persistedValue(value)
		}
	}
	data, err := json.Marshal(record)
	if err != nil {
		// A field that cannot be encoded is stored as its printed form.
		for key, value := range record.Fields {
			record.Fields[key] = fmt.Sprint(value)
		}
		if data, err = json.Marshal(record); err != nil {
			return nil, err
		}
	}
	return append(data, '\n'), nil
}

func persistedValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case error:
		return ansi.Strip(v.Error())
	case string:
		return ansi.Strip(v)
	case json.RawMessage:
		if json.Valid(v) {
			return v
		}
		return ansi.Strip(string(v))
	case []byte:
		return ansi.Strip(string(v))
	case time.Duration:
		return v.String()
	case fmt.Stringer:
		return ansi.Strip(v.String())
	}
	return value
}
