package cli

import (
	"context"
	"encoding/json"

	"runitdb/database"
	"runitdb/internal/runctx"
	"runitdb/logging"
)

const eventBufferSize = 64

type subscribeCommand struct {
	app        *App
	Event      string        `long:"event" short:"e" default:"all" choice:"all" choice:"insert" choice:"update" choice:"delete" description:"Change kind to receive"`
	DocumentID string        `long:"document" short:"d" description:"Only receive changes to this document ID"`
	DropSlow   bool          `long:"drop-slow" description:"Drop the oldest queued events instead of pausing the connection when output falls behind"`
	Args       collectionArg `positional-args:"yes"`
}

func (c *subscribeCommand) Execute([]string) error {
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(c.app.ctx)
	defer cancel()

	logger := c.app.logger
	events := runctx.NewPipe[json.RawMessage]("subscription printer", eventBufferSize, logger)
	sub, err := coll.Subscribe(ctx, database.SubscribeOptions{
		Event:      database.EventKind(c.Event),
		DocumentID: c.DocumentID,
		OnStatus: func(status string) {
			logger.Info("subscription "+status, logging.Field("collection", coll.Name()))
		},
	}, func(ctx context.Context, ev database.Event) error {
		if c.DropSlow {
			events.Offer(ev.Raw)
			return nil
		}
		events.Send(ctx, ev.Raw)
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		<-sub.Done()
		cancel()
	}()

	for {
		raw, ok := events.Recv(ctx)
		if !ok {
			break
		}
		if err := c.app.printJSON(raw); err != nil {
			logger.Warn("failed to print event", logging.Field("error", err))
		}
	}

	sub.Stop()
	if dropped := events.Dropped(); dropped > 0 {
		logger.Warn("events dropped while output was behind", logging.Field("dropped", dropped))
	}
	return sub.Wait(context.Background())
}
