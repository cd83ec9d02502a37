// Package runctx hands values between goroutines without outliving a
// context.
package runctx

import (
	"context"
	"sync/atomic"

	"runitdb/logging"
)

// Pipe is a bounded channel between producers and one consumer. Send blocks
// for room; Offer drops the oldest queued value instead.
type Pipe[T any] struct {
	name    string
	logger  *logging.Logger
	ch      chan T
	dropped atomic.Int64
}

func NewPipe[T any](name string, size int, logger *logging.Logger) *Pipe[T] {
	if logger == nil {
		panic("runctx.NewPipe: logger must not be nil")
	}
	if size < 1 {
		size = 1
	}
	return &Pipe[T]{name: name, logger: logger, ch: make(chan T, size)}
}

// Send queues v, waiting for room until ctx is done.
func (p *Pipe[T]) Send(ctx context.Context, v T) bool {
	select {
	case <-ctx.Done():
		p.logger.Debug("stopping "+p.name+": context canceled before send", logging.Field("error", ctx.Err()))
		return false
	case p.ch <- v:
		return true
	}
}

// Offer queues v without blocking, evicting the oldest value when full.
func (p *Pipe[T]) Offer(v T) {
	for {
		select {
		case p.ch <- v:
			return
		default:
		}
		select {
		case <-p.ch:
			if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
				p.logger.Warn(p.name+" is falling behind; dropping oldest values", logging.Field("dropped", n))
			}
		default:
		}
	}
}

// Recv returns the next value, or false once ctx is done.
func (p *Pipe[T]) Recv(ctx context.Context) (T, bool) {
	select {
	case <-ctx.Done():
		p.logger.Debug("stopping "+p.name+": context canceled", logging.Field("error", ctx.Err()))
		var zero T
		return zero, false
	case v := <-p.ch:
		return v, true
	}
}

func (p *Pipe[T]) Dropped() int64 {
	return p.dropped.Load()
}
