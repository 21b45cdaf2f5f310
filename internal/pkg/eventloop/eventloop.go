/*
Package eventloop provides the single-threaded cooperative executor that owns all chat
session state.

Work is posted as closures onto a FIFO queue and executed one at a time on the loop
goroutine. A closure runs to completion before the next one starts, so state touched only
from posted closures needs no locking. Blocking work (REST calls, dials) must run elsewhere
and post its completion back onto the loop.
*/
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"moviechat/internal/pkg/logx"
)

// queueSize bounds the number of pending closures before Post blocks.
const queueSize = 1024

// ErrStopped is returned by Call when the loop is not running anymore.
var ErrStopped = errors.New("event loop stopped")

// Loop is a FIFO executor running every posted closure on one goroutine.
type Loop struct {
	queue chan func()

	// done is closed when Run returns.
	done chan struct{}

	stopOnce sync.Once

	logger zerolog.Logger
}

// New constructs an idle Loop. Call Run to start processing.
func New() *Loop {
	return &Loop{
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logx.Component("eventloop"),
	}
}

// Run processes posted closures until ctx is cancelled. It blocks.
func (l *Loop) Run(ctx context.Context) {
	defer l.stopOnce.Do(func() { close(l.done) })

	l.logger.Debug().Msg("Event loop started.")

	for {
		select {
		case fn := <-l.queue:
			l.execute(fn)
		case <-ctx.Done():
			l.logger.Debug().Msg("Event loop stopped.")
			return
		}
	}
}

// execute runs one closure, keeping the loop alive if it panics.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Recovered from panic in event handler.")
		}
	}()

	fn()
}

// Post enqueues fn and returns immediately unless the queue is full.
// It reports false when the loop has stopped and fn was discarded.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call posts fn and waits for it to finish, returning its error.
// It must not be called from a closure running on the loop.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)

	ok := l.Post(func() {
		result <- fn()
	})
	if !ok {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for event loop: %w", ctx.Err())
	case <-l.done:
		return ErrStopped
	}
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
