package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"runitdb/internal/runstatus"
	"runitdb/logging"
)

const (
	// DefaultReconnectDelay is the fixed wait between subscription attempts.
	DefaultReconnectDelay = 5 * time.Second

	// Time allowed to write a frame to the server.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong or frame from the server.
	defaultPongWait = 60 * time.Second

	defaultMaxMessageBytes = 4 << 20
)

type DialFunc func(ctx context.Context, uri string) (*websocket.Conn, error)

type Hooks struct {
	OnConnected    func(uri string)
	OnDisconnected func(err error)
	OnStatus       func(status string)
}

// Stream runs subscriptions. The zero value is usable; Logger may be nil.
type Stream struct {
	Dial            DialFunc
	ReconnectDelay  time.Duration
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	NewSessionID    func() string
	Logger          *logging.Logger
	Hooks           Hooks
}

// Run keeps target subscribed until ctx is canceled, reconnecting after a
// fixed delay whenever a session ends. It returns nil on cancellation and an
// ErrConfig error when target can never connect.
func (s Stream) Run(ctx context.Context, target Target, handler Handler) error {
	if err := target.Validate(); err != nil {
		return err
	}

	delay := s.reconnectDelay()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.RunSession(ctx, target, handler)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrConfig) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err == nil {
			err = ErrConnectionClosed
		}
		s.notifyDisconnected(err)
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.Logger.Warn("subscription error, reconnecting",
				logging.Field("collection", target.Collection),
				logging.Field("error", err),
				logging.Field("next_retry", next.String()),
			)
			s.setStatus(runstatus.Reconnecting)
		}),
	)
	s.setStatus(runstatus.Stopped)

	// A canceled ctx may surface as its cause rather than context.Canceled.
	if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.Logger.Debug("subscription stopped", logging.Field("collection", target.Collection))
		return nil
	}
	s.Logger.Warn("subscription stopped", logging.Field("collection", target.Collection), logging.Field("error", err))
	return err
}

// RunSession performs a single connection attempt and blocks until the
// connection ends. It always returns a non-nil error.
func (s Stream) RunSession(ctx context.Context, target Target, handler Handler) error {
	sessionID := s.sessionID()
	uri, err := target.URI(sessionID)
	if err != nil {
		return err
	}

	s.setStatus(runstatus.Connecting)
	s.Logger.Debug("opening subscription", logging.Field("uri", uri))
	conn, err := s.dial(ctx, uri)
	if err != nil {
		return fmt.Errorf("dial subscription: %w", err)
	}
	defer conn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Unblocks ReadMessage when the caller cancels.
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait()))
	handshake, err := json.Marshal(subscriberHandshake)
	if err != nil {
		return fmt.Errorf("encode subscriber handshake: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, handshake); err != nil {
		return fmt.Errorf("send subscriber handshake: %w", err)
	}

	pongWait := s.pongWait()
	conn.SetReadLimit(s.maxMessageBytes())
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepAlive(sessionCtx, conn)

	s.setStatus(runstatus.Connected)
	s.Logger.Info("subscription connected",
		logging.Field("collection", target.Collection),
		logging.Field("session_id", sessionID),
	)
	if s.Hooks.OnConnected != nil {
		s.Hooks.OnConnected(uri)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			return fmt.Errorf("read subscription frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, decodeErr := decodeMessage(data)
		if decodeErr != nil {
			s.Logger.Warn("failed to decode subscription event",
				logging.Field("error", decodeErr),
				logging.Field("frame", logging.Truncate(string(data))),
			)
			continue
		}
		s.dispatch(sessionCtx, handler, msg)
	}
}

func (s Stream) dispatch(ctx context.Context, handler Handler, msg Message) {
	if handler == nil {
		s.Logger.Debug("subscription event received without handler", logging.Field("data", msg.Raw))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Warn("subscription handler panicked", logging.Field("panic", fmt.Sprint(r)))
		}
	}()
	if err := handler(ctx, msg); err != nil {
		s.Logger.Warn("subscription handler failed", logging.Field("error", err))
	}
}

func (s Stream) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.writeWait())
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.Logger.Debug("subscription ping failed", logging.Field("error", err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (s Stream) dial(ctx context.Context, uri string) (*websocket.Conn, error) {
	if s.Dial != nil {
		return s.Dial(ctx, uri)
	}
	return DefaultDial(ctx, uri)
}

// DefaultDial opens uri with gorilla's default dialer. No credentials are
// attached to the handshake.
func DefaultDial(ctx context.Context, uri string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

func (s Stream) notifyDisconnected(err error) {
	if s.Hooks.OnDisconnected != nil {
		s.Hooks.OnDisconnected(err)
	}
}

func (s Stream) setStatus(status string) {
	if s.Hooks.OnStatus != nil {
		s.Hooks.OnStatus(status)
	}
}

func (s Stream) sessionID() string {
	if s.NewSessionID != nil {
		return s.NewSessionID()
	}
	return NewSessionID()
}

func (s Stream) reconnectDelay() time.Duration {
	if s.ReconnectDelay > 0 {
		return s.ReconnectDelay
	}
	return DefaultReconnectDelay
}

func (s Stream) writeWait() time.Duration {
	if s.WriteWait > 0 {
		return s.WriteWait
	}
	return defaultWriteWait
}

func (s Stream) pongWait() time.Duration {
	if s.PongWait > 0 {
		return s.PongWait
	}
	return defaultPongWait
}

// pingPeriod must stay below pongWait.
func (s Stream) pingPeriod() time.Duration {
	if s.PingPeriod > 0 && s.PingPeriod < s.pongWait() {
		return s.PingPeriod
	}
	return (s.pongWait() * 9) / 10
}

func (s Stream) maxMessageBytes() int64 {
	if s.MaxMessageBytes > 0 {
		return s.MaxMessageBytes
	}
	return defaultMaxMessageBytes
}
