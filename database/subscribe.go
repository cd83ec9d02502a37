package database

import (
	"context"
	"fmt"

	"runitdb/internal/realtime"
	"runitdb/logging"
)

type SubscribeOptions struct {
	// Event selects the change kind to receive. Empty means all.
	Event EventKind
	// DocumentID narrows the subscription to one document.
	DocumentID string
	// OnStatus observes connection status changes: Connecting, Connected,
	// Reconnecting and finally Stopped.
	OnStatus func(status string)
}

// Subscribe starts a background subscription to changes in the collection.
// handler runs on the subscription goroutine for every decoded event; its
// errors and panics are logged and the next event is processed. The
// subscription reconnects after a fixed delay until ctx is canceled or Stop
// is called.
func (c *CollectionHandle) Subscribe(ctx context.Context, opts SubscribeOptions, handler EventHandler) (*Subscription, error) {
	event, err := realtime.ParseEventKind(string(opts.Event))
	if err != nil {
		return nil, err
	}

	target := realtime.Target{
		Endpoint:   c.client.endpoints.BaseURL,
		Event:      event,
		ProjectID:  c.client.cfg.ProjectID,
		Collection: c.name,
		DocumentID: opts.DocumentID,
	}

	stream := c.client.stream
	stream.Logger = c.logger
	if opts.OnStatus != nil {
		stream.Hooks.OnStatus = opts.OnStatus
	}

	sub, err := realtime.Start(ctx, stream, target, handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", c.name, err)
	}
	c.logger.Debug("subscription started", logging.Field("event", string(event)))
	return sub, nil
}

// Subscribe is the name-keyed form of CollectionHandle.Subscribe.
func (c *Client) Subscribe(ctx context.Context, collection string, opts SubscribeOptions, handler EventHandler) (*Subscription, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Subscribe(ctx, opts, handler)
}
