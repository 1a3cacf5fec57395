package loader

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Amund211/asyncloader/internal/clock"
	"golang.org/x/sync/errgroup"
)

const idlePollInterval = 100 * time.Millisecond

type StrategyKind string

const (
	StrategyAuto        StrategyKind = "auto"
	StrategyPool        StrategyKind = "pool"
	StrategyCooperative StrategyKind = "cooperative"
)

func ParseStrategyKind(raw string) (StrategyKind, error) {
	switch kind := StrategyKind(strings.ToLower(raw)); kind {
	case StrategyAuto, StrategyPool, StrategyCooperative:
		return kind, nil
	}
	return "", fmt.Errorf("unknown worker strategy %q", raw)
}

// Strategy runs load requests off the frame pump.
type Strategy interface {
	Name() string
	Start(ctx context.Context, numWorkers int)
	Stop()
	// Notify signals that a new request is waiting
	Notify()
	Workers() int
}

// runOneFunc processes a single pending request, returning false if there was none
type runOneFunc func(ctx context.Context) bool

// blockedFunc reports whether workers should hold off because too many results are waiting
type blockedFunc func() bool

// supportsThreads reports whether goroutines on this platform can run next to the frame thread
func supportsThreads(goos string, maxProcs int) bool {
	if goos == "js" || goos == "wasip1" {
		return false
	}
	return maxProcs > 1
}

func resolveStrategyKind(kind StrategyKind) StrategyKind {
	if kind != StrategyAuto {
		return kind
	}
	if supportsThreads(runtime.GOOS, runtime.GOMAXPROCS(0)) {
		return StrategyPool
	}
	return StrategyCooperative
}

type poolStrategy struct {
	runOne  runOneFunc
	blocked blockedFunc
	wake    chan struct{}

	mutex   sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	workers int
}

func newPoolStrategy(runOne runOneFunc, blocked blockedFunc) *poolStrategy {
	return &poolStrategy{
		runOne:  runOne,
		blocked: blocked,
		// Wakes at most one waiting worker per request, the rest catch up on their idle poll
		wake: make(chan struct{}, 1),
	}
}

func (p *poolStrategy) Name() string {
	return string(StrategyPool)
}

func (p *poolStrategy) Start(ctx context.Context, numWorkers int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.group != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	for range numWorkers {
		group.Go(func() error {
			p.work(ctx)
			return nil
		})
	}

	p.cancel = cancel
	p.group = group
	p.workers = numWorkers
}

func (p *poolStrategy) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if p.blocked() {
			if !sleep(ctx, idlePollInterval) {
				return
			}
			continue
		}

		if p.runOne(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-time.After(idlePollInterval):
		}
	}
}

func (p *poolStrategy) Stop() {
	p.mutex.Lock()
	cancel := p.cancel
	group := p.group
	p.cancel = nil
	p.mutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = group.Wait()
}

func (p *poolStrategy) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *poolStrategy) Workers() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.workers
}

// FrameScheduler runs callbacks on the frame thread.
type FrameScheduler interface {
	CreateTrigger(callback func()) *clock.Trigger
	ScheduleInterval(callback func(), interval time.Duration) *clock.Event
}

// cooperativeStrategy processes one request per frame on the frame thread
type cooperativeStrategy struct {
	scheduler FrameScheduler
	runOne    runOneFunc
	blocked   blockedFunc

	mutex sync.Mutex
	event *clock.Event
}

func newCooperativeStrategy(scheduler FrameScheduler, runOne runOneFunc, blocked blockedFunc) *cooperativeStrategy {
	return &cooperativeStrategy{
		scheduler: scheduler,
		runOne:    runOne,
		blocked:   blocked,
	}
}

func (c *cooperativeStrategy) Name() string {
	return string(StrategyCooperative)
}

func (c *cooperativeStrategy) Start(ctx context.Context, _ int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.event != nil {
		return
	}

	c.event = c.scheduler.ScheduleInterval(func() {
		if ctx.Err() != nil {
			return
		}
		// Never sleep on the frame thread, the pump runs there
		if c.blocked() {
			return
		}
		c.runOne(ctx)
	}, 0)
}

func (c *cooperativeStrategy) Stop() {
	c.mutex.Lock()
	event := c.event
	c.mutex.Unlock()

	if event != nil {
		event.Cancel()
	}
}

func (c *cooperativeStrategy) Notify() {}

func (c *cooperativeStrategy) Workers() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.event == nil {
		return 0
	}
	return 1
}

// sleep waits for d, returning false if ctx is cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
