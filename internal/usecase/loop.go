package usecase

import (
	"context"
	"fmt"
	"sync"

	"versusmatch/internal/logger"
)

// eventLoop serializes every mutation of match state onto one goroutine.
// post never blocks, so collaborators may deliver callbacks synchronously from
// inside a call the loop itself is running.
type eventLoop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *eventLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for it. It must not be used from a task
// already running on the loop.
func (l *eventLoop) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrControllerClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idle blocks until the queue has been observed empty from inside the loop.
func (l *eventLoop) idle(ctx context.Context) error {
	for {
		empty := false
		if err := l.call(ctx, func() {
			l.mu.Lock()
			empty = len(l.queue) == 0
			l.mu.Unlock()
		}); err != nil {
			return err
		}
		if empty {
			return nil
		}
	}
}

// close stops accepting tasks; already queued tasks still run.
func (l *eventLoop) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		invoke(fn)
	}
}

func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
