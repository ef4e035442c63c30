// Package timer drives the match clock.
package timer

import (
	"sync"
	"time"

	"versusmatch/internal/ports"
)

const DefaultInterval = time.Second

// Countdown ticks once per interval from the starting value down to zero.
// Starting again replaces the running countdown.
type Countdown struct {
	interval time.Duration

	mu     sync.Mutex
	events ports.CountdownEvents
	stop   chan struct{}
}

func NewCountdown(interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Countdown{interval: interval}
}

func (c *Countdown) Bind(events ports.CountdownEvents) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

func (c *Countdown) StartMain(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	if seconds <= 0 {
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	go c.run(seconds, stop)
}

func (c *Countdown) StopAll() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// Running reports whether a countdown is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) run(remaining int, stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		remaining--

		c.mu.Lock()
		if c.stop != stop {
			c.mu.Unlock()
			return
		}
		onTick := c.events.Tick
		if remaining == 0 {
			c.stop = nil
		}
		c.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
	}
}

var _ ports.Countdown = (*Countdown)(nil)
