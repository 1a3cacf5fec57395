// Package clock implements a frame clock: a single-threaded scheduler that runs
// debounced triggers and interval callbacks once per tick.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrInvalidFrameRate = errors.New("invalid frame rate")

type Clock struct {
	nowFunc func() time.Time

	mutex  sync.Mutex
	armed  []*Trigger
	events []*Event
	frames uint64
}

func New(nowFunc func() time.Time) *Clock {
	return &Clock{
		nowFunc: nowFunc,
		armed:   make([]*Trigger, 0),
		events:  make([]*Event, 0),
	}
}

// Trigger runs its callback on the next tick after Fire is called.
//
// Any number of Fire calls before that tick result in a single invocation.
type Trigger struct {
	clock    *Clock
	callback func()
	armed    bool
}

func (c *Clock) CreateTrigger(callback func()) *Trigger {
	return &Trigger{
		clock:    c,
		callback: callback,
	}
}

// Fire arms the trigger. Safe to call from any goroutine.
func (t *Trigger) Fire() {
	t.clock.mutex.Lock()
	defer t.clock.mutex.Unlock()

	if t.armed {
		return
	}
	t.armed = true
	t.clock.armed = append(t.clock.armed, t)
}

// Cancel disarms the trigger if it is waiting for the next tick.
func (t *Trigger) Cancel() {
	t.clock.mutex.Lock()
	defer t.clock.mutex.Unlock()

	if !t.armed {
		return
	}
	t.armed = false
	for i, armed := range t.clock.armed {
		if armed == t {
			t.clock.armed = append(t.clock.armed[:i], t.clock.armed[i+1:]...)
			break
		}
	}
}

// Event is a callback registered to run periodically.
type Event struct {
	clock     *Clock
	callback  func()
	interval  time.Duration
	next      time.Time
	cancelled bool
}

// ScheduleInterval runs callback every interval. An interval of 0 runs it once per tick.
func (c *Clock) ScheduleInterval(callback func(), interval time.Duration) *Event {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	event := &Event{
		clock:    c,
		callback: callback,
		interval: interval,
		next:     c.nowFunc().Add(interval),
	}
	c.events = append(c.events, event)
	return event
}

func (e *Event) Cancel() {
	e.clock.mutex.Lock()
	defer e.clock.mutex.Unlock()

	e.cancelled = true
	for i, event := range e.clock.events {
		if event == e {
			e.clock.events = append(e.clock.events[:i], e.clock.events[i+1:]...)
			break
		}
	}
}

func (c *Clock) Frames() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.frames
}

// Tick advances the clock by one frame.
//
// Triggers armed before the tick run first, then every due interval event.
// Triggers fired while the tick is running are deferred to the next tick.
func (c *Clock) Tick() {
	c.mutex.Lock()
	now := c.nowFunc()
	c.frames++

	triggers := c.armed
	c.armed = make([]*Trigger, 0, len(triggers))
	for _, trigger := range triggers {
		trigger.armed = false
	}
	c.mutex.Unlock()

	for _, trigger := range triggers {
		trigger.callback()
	}

	c.mutex.Lock()
	due := make([]*Event, 0, len(c.events))
	for _, event := range c.events {
		if event.interval > 0 && now.Before(event.next) {
			continue
		}
		due = append(due, event)
	}
	c.mutex.Unlock()

	for _, event := range due {
		c.mutex.Lock()
		cancelled := event.cancelled
		if !cancelled {
			event.next = now.Add(event.interval)
		}
		c.mutex.Unlock()

		if cancelled {
			continue
		}
		event.callback()
	}
}

// Run ticks the clock framesPerSecond times per second until ctx is cancelled.
func (c *Clock) Run(ctx context.Context, framesPerSecond int) error {
	if framesPerSecond < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidFrameRate, framesPerSecond)
	}

	ticker := time.NewTicker(time.Second / time.Duration(framesPerSecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}
