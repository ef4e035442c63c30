package usecase

import (
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

// taskRunner schedules match-scoped work back onto the event loop.
type taskRunner interface {
	after(d time.Duration, reason domain.StateReason, fn func())
	guard(reason domain.StateReason, fn func()) func()
	generation() uint64
}

// matchTasks owns every pending timer of the current match. Work scheduled
// through it is dropped once the match generation moves on or the match is no
// longer started. All methods except the returned guard funcs must run on the
// loop.
type matchTasks struct {
	loop      *eventLoop
	scheduler ports.Scheduler
	live      func() bool
	publish   func(reason domain.StateReason)

	gen     uint64
	nextID  uint64
	pending map[uint64]func()
}

func newMatchTasks(loop *eventLoop, scheduler ports.Scheduler, live func() bool, publish func(domain.StateReason)) *matchTasks {
	return &matchTasks{
		loop:      loop,
		scheduler: scheduler,
		live:      live,
		publish:   publish,
		pending:   make(map[uint64]func()),
	}
}

func (t *matchTasks) generation() uint64 {
	return t.gen
}

func (t *matchTasks) after(d time.Duration, reason domain.StateReason, fn func()) {
	gen := t.gen
	t.nextID++
	id := t.nextID

	cancel := t.scheduler.AfterFunc(d, func() {
		t.loop.post(func() {
			delete(t.pending, id)
			if t.gen != gen || !t.live() {
				return
			}
			fn()
			t.publish(reason)
		})
	})
	t.pending[id] = cancel
}

// guard wraps fn so it can be invoked from any goroutine. The wrapped call is
// posted to the loop and skipped if the match it was created for is over.
func (t *matchTasks) guard(reason domain.StateReason, fn func()) func() {
	gen := t.gen
	return func() {
		t.loop.post(func() {
			if t.gen != gen || !t.live() {
				return
			}
			fn()
			t.publish(reason)
		})
	}
}

// cancelAll stops every pending timer and invalidates outstanding guards.
func (t *matchTasks) cancelAll() {
	for id, cancel := range t.pending {
		cancel()
		delete(t.pending, id)
	}
	t.gen++
}

func (t *matchTasks) pendingCount() int {
	return len(t.pending)
}

type clockScheduler struct{}

// NewClockScheduler returns a Scheduler backed by time.AfterFunc.
func NewClockScheduler() ports.Scheduler {
	return clockScheduler{}
}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}
