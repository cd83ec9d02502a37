package database

import (
	"encoding/json"

	"runitdb/internal/realtime"
	"runitdb/internal/transport"
)

// Filter maps field names to the values they must match.
type Filter map[string]any

// Document is a schemaless record.
type Document map[string]any

// Result is the JSON body returned by the service.
type Result json.RawMessage

func (r Result) Decode(v any) error {
	return json.Unmarshal(r, v)
}

func (r Result) String() string {
	return string(r)
}

func (r Result) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

type RetryPolicy = transport.RetryPolicy

func DefaultRetryPolicy() RetryPolicy {
	return transport.DefaultRetryPolicy()
}

type EventKind = realtime.EventKind

const (
	EventAll    = realtime.EventAll
	EventInsert = realtime.EventInsert
	EventUpdate = realtime.EventUpdate
	EventDelete = realtime.EventDelete
)

// Event is one change notification delivered to a subscription handler.
type Event = realtime.Message

type EventHandler = realtime.Handler

type Subscription = realtime.Subscription
