package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	clipLimit = 240

	// MaxPayloadBytes bounds request/response bodies and frames in log output.
	MaxPayloadBytes = 2048
)

// Fields holding wire payloads render after the inline fields, as blocks.
var payloadKeys = map[string]bool{
	"body":     true,
	"data":     true,
	"frame":    true,
	"payload":  true,
	"response": true,
}

var (
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	messageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	gutterStyle  = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("238")).
			PaddingLeft(1)
	badgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

var colorProfileOnce sync.Once

// colorOutput reports whether w is a terminal that should get ANSI output.
// NO_COLOR and RUNITDB_PLAIN_LOGS turn colour off.
func colorOutput(w io.Writer) bool {
	if os.Getenv("RUNITDB_PLAIN_LOGS") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	profile := termenv.NewOutput(f).EnvColorProfile()
	if profile == termenv.Ascii {
		return false
	}
	colorProfileOnce.Do(func() {
		lipgloss.SetColorProfile(profile)
	})
	return true
}

// Truncate flattens value onto one line and clips it for inline display.
func Truncate(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	if value == "" {
		return "<empty>"
	}
	if len(value) > clipLimit {
		return value[:clipLimit] + "..."
	}
	return value
}

// FormatPayload renders a wire payload for logs. JSON is re-indented
// without HTML escaping, a JSON-encoded string body is unquoted first, and
// anything longer than MaxPayloadBytes is clipped.
func FormatPayload(raw []byte) string {
	clipped := len(raw) > MaxPayloadBytes
	if clipped {
		raw = raw[:MaxPayloadBytes]
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "<empty>"
	}

	var quoted string
	if err := json.Unmarshal([]byte(text), &quoted); err == nil {
		text = strings.TrimSpace(quoted)
	}
	if pretty, ok := indentJSON(text); ok {
		return pretty
	}
	if clipped {
		return text + "..."
	}
	return text
}

func indentJSON(text string) (string, bool) {
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		return "", false
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return "", false
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", false
	}
	return strings.TrimSpace(buf.String()), true
}

// FormatEventLine renders event as one plain line, followed by an indented
// block per payload field.
func FormatEventLine(event Event) string {
	var b strings.Builder
	b.WriteString(event.Time.Format("15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(levelName(event.Level))
	b.WriteString("] ")
	b.WriteString(event.Message)

	inline, blocks := splitFields(event.Fields)
	for _, key := range inline {
		fmt.Fprintf(&b, " %s=%s", key, inlineValue(event.Fields[key]))
	}
	b.WriteByte('\n')
	for _, key := range blocks {
		fmt.Fprintf(&b, "  %s:\n", key)
		for _, line := range strings.Split(blockValue(event.Fields[key]), "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// FormatEventANSI is the coloured form of FormatEventLine.
func FormatEventANSI(event Event) string {
	badge, style := levelBadge(event.Level)
	line := timeStyle.Render(event.Time.Format("15:04:05.000")) + " " +
		style.Render(badge) + " " +
		messageStyle.Render(event.Message)

	inline, blocks := splitFields(event.Fields)
	for _, key := range inline {
		line += " " + keyStyle.Render(key) + timeStyle.Render("=") + valueStyle.Render(inlineValue(event.Fields[key]))
	}
	line += "\n"
	for _, key := range blocks {
		line += "  " + keyStyle.Render(key) + "\n"
		line += lipgloss.NewStyle().MarginLeft(2).Render(gutterStyle.Render(blockValue(event.Fields[key]))) + "\n"
	}
	return line
}

func levelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level <= slog.LevelInfo:
		return "INFO"
	case level <= slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func levelBadge(level slog.Level) (string, lipgloss.Style) {
	name := levelName(level)
	switch name {
	case "DEBUG":
		return name, badgeStyle.Foreground(lipgloss.Color("255")).Background(lipgloss.Color("240"))
	case "INFO":
		return name, badgeStyle.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("31"))
	case "WARN":
		return name, badgeStyle.Foreground(lipgloss.Color("234")).Background(lipgloss.Color("214"))
	default:
		return name, badgeStyle.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160"))
	}
}

// splitFields returns the inline keys and the payload block keys, each
// sorted.
func splitFields(fields map[string]any) (inline, blocks []string) {
	for key, value := range fields {
		if isPayloadField(key, value) {
			blocks = append(blocks, key)
			continue
		}
		inline = append(inline, key)
	}
	sort.Strings(inline)
	sort.Strings(blocks)
	return inline, blocks
}

func isPayloadField(key string, value any) bool {
	switch value.(type) {
	case json.RawMessage:
		return true
	case string, []byte:
		return payloadKeys[strings.ToLower(key)]
	}
	return false
}

func inlineValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case error:
		return quoteIfSpaced(v.Error())
	case string:
		return quoteIfSpaced(v)
	case fmt.Stringer:
		return quoteIfSpaced(v.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(v)
	}
	if data, err := json.Marshal(value); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", value)
}

func blockValue(value any) string {
	switch v := value.(type) {
	case json.RawMessage:
		return FormatPayload(v)
	case []byte:
		return FormatPayload(v)
	case string:
		return FormatPayload([]byte(v))
	}
	return inlineValue(value)
}

func quoteIfSpaced(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// fieldsFromAttrs flattens attrs into a map. Group members get dotted keys
// such as "request.url".
func fieldsFromAttrs(attrs []slog.Attr) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	fields := make(map[string]any, len(attrs))
	var add func(prefix string, attr slog.Attr)
	add = func(prefix string, attr slog.Attr) {
		if attr.Key == "" {
			return
		}
		key := attr.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			for _, member := range value.Group() {
				add(key, member)
			}
			return
		}
		fields[key] = value.Any()
	}
	for _, attr := range attrs {
		add("", attr)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
