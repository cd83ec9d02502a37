package realtime

import (
	"context"
	"sync"

	"runitdb/internal/runstatus"
)

// Subscription is the handle of a running subscription goroutine.
type Subscription struct {
	target Target
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	status string
	err    error
}

// Start validates target synchronously, then runs s.Run on its own
// goroutine. The goroutine owns the connection; Stop cancels it.
func Start(ctx context.Context, s Stream, target Target, handler Handler) (*Subscription, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		target: target,
		cancel: cancel,
		done:   make(chan struct{}),
		status: runstatus.Connecting,
	}

	onStatus := s.Hooks.OnStatus
	s.Hooks.OnStatus = func(status string) {
		sub.setStatus(status)
		if onStatus != nil {
			onStatus(status)
		}
	}

	go func() {
		defer close(sub.done)
		defer cancel()
		err := s.Run(runCtx, target, handler)
		sub.mu.Lock()
		sub.err = err
		sub.status = runstatus.Stopped
		sub.mu.Unlock()
	}()

	return sub, nil
}

func (s *Subscription) Target() Target {
	return s.target
}

// Stop cancels the subscription. It does not wait for the goroutine to exit.
func (s *Subscription) Stop() {
	s.cancel()
}

// Done is closed once the subscription goroutine has returned.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the subscription ends or ctx is done. It returns the
// error that ended the subscription, which is nil after Stop.
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Subscription) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Subscription) setStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runstatus.Terminal(s.status) {
		return
	}
	s.status = status
}
