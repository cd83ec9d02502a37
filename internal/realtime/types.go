package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"

	"runitdb/internal/config"
)

type EventKind string

const (
	EventAll    EventKind = "all"
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

var (
	// ErrConfig marks subscription settings that can never connect. It is
	// returned before any connection attempt and never retried.
	ErrConfig = errors.New("invalid configuration")

	ErrConnectionClosed = errors.New("subscription connection closed")
)

func ParseEventKind(raw string) (EventKind, error) {
	switch kind := EventKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return EventAll, nil
	case EventAll, EventInsert, EventUpdate, EventDelete:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: event must be one of: all, insert, update, delete (got %q)", ErrConfig, raw)
	}
}

// Target is what one subscription listens to. Endpoint is the API base URL
// (http or https); the subscribe path is appended when the URI is built.
type Target struct {
	Endpoint   string
	Event      EventKind
	ProjectID  string
	Collection string
	DocumentID string
}

func (t Target) Validate() error {
	if strings.TrimSpace(t.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrConfig)
	}
	if strings.TrimSpace(t.ProjectID) == "" {
		return fmt.Errorf("%w: project ID is required", ErrConfig)
	}
	if strings.TrimSpace(t.Collection) == "" {
		return fmt.Errorf("%w: collection is required", ErrConfig)
	}
	if _, err := ParseEventKind(string(t.Event)); err != nil {
		return err
	}
	if _, err := config.BuildEndpoints(t.Endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// URI returns
// {ws|wss}://{host}/documents/subscribe/{event}/{session}/{project}/{collection}[/{document}].
func (t Target) URI(sessionID string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	endpoints, err := config.BuildEndpoints(t.Endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	kind, _ := ParseEventKind(string(t.Event))

	segments := []string{
		string(kind),
		sessionID,
		strings.TrimSpace(t.ProjectID),
		strings.TrimSpace(t.Collection),
	}
	if doc := strings.TrimSpace(t.DocumentID); doc != "" {
		segments = append(segments, doc)
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return websocketScheme(endpoints.SubscribeURL + strings.Join(segments, "/"))
}

func websocketScheme(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrConfig, parsed.Scheme)
	}
	return parsed.String(), nil
}

// NewSessionID returns a time-ordered id that is unique per call within
// the process.
func NewSessionID() string {
	return ulid.Make().String()
}

// Message is one decoded event frame. Data holds the JSON value as decoded
// into Go types (usually map[string]any).
type Message struct {
	Raw  json.RawMessage
	Data any
}

// Decode unmarshals the raw frame into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// Handler is called once per event, on the subscription goroutine. Errors
// and panics are logged and do not end the subscription.
type Handler func(ctx context.Context, msg Message) error

type handshakeFrame struct {
	Type string `json:"type"`
}

var subscriberHandshake = handshakeFrame{Type: "subscriber"}

func decodeMessage(data []byte) (Message, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Message{}, err
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Message{Raw: raw, Data: decoded}, nil
}
