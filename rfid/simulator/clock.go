package simulator

import (
	"sync"
	"time"
)

// Clock is the time source of the inventory loop.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of time.Ticker the inventory loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	*time.Ticker
}

func (t systemTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// FakeClock only moves when Advance is called. A ticker fires when the clock
// passes its next deadline; like time.Ticker it drops ticks the reader has
// not consumed yet.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock returns a FakeClock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("simulator: non-positive interval for NewTicker")
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	t := &fakeTicker{clock: fc, period: d, next: fc.now.Add(d), c: make(chan time.Time, 1)}
	fc.tickers = append(fc.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing every ticker whose deadline
// falls inside the step.
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)

	live := fc.tickers[:0]
	for _, t := range fc.tickers {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if fc.now.Before(t.next) {
			continue
		}
		for !fc.now.Before(t.next) {
			t.next = t.next.Add(t.period)
		}
		select {
		case t.c <- fc.now:
		default:
		}
	}
	fc.tickers = live
}

// Tickers returns how many tickers are still running.
func (fc *FakeClock) Tickers() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, t := range fc.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock   *FakeClock
	period  time.Duration
	next    time.Time
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}
