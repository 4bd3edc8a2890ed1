package timectrl

import (
	"sync"
	"time"
)

// SimClock is an interface for reading simulation time, so engine-side
// components can depend on a clock abstraction rather than a concrete
// controller type.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Elapsed returns total simulated seconds since the start.
	Elapsed() float64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances wall-clock ticks scaled by the user-selected
	// speed multiplier.
	RealTime Mode = iota
	// Unbounded re-executes the full tick pipeline BurstTicks times
	// per external frame, at the unscaled tick length. The end state
	// must match running the same number of individual ticks.
	Unbounded
)

// TimeController drives simulation time and notifies registered
// listeners with the simulated dt of each step. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// Multiplier scales simulated time per real tick in RealTime
	// mode. 1 is parity.
	Multiplier float64

	// BurstTicks is how many pipeline executions one external frame
	// performs in Unbounded mode.
	BurstTicks int

	currentTime time.Time
	elapsed     float64

	listeners []func(dt float64)
}

// NewTimeController constructs a controller at 1x speed.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		Multiplier:  1,
		BurstTicks:  1000,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns total simulated seconds. Implements SimClock.
func (tc *TimeController) Elapsed() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.elapsed
}

// SetMultiplier changes the real-time speed factor; non-positive
// values are ignored.
func (tc *TimeController) SetMultiplier(m float64) {
	if m <= 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.Multiplier = m
}

// AddListener registers a callback invoked with the simulated dt of
// every step.
func (tc *TimeController) AddListener(fn func(dt float64)) {
	tc.listeners = append(tc.listeners, fn)
}

// Step advances one external frame synchronously: a single scaled tick
// in RealTime mode, or BurstTicks unscaled ticks in Unbounded mode.
// Exposed separately from Start so headless runs and tests can drive
// frames without a ticker.
func (tc *TimeController) Step() {
	switch tc.Mode {
	case RealTime:
		tc.advance(tc.Tick.Seconds() * tc.multiplier())
	case Unbounded:
		dt := tc.Tick.Seconds()
		for i := 0; i < tc.BurstTicks; i++ {
			tc.advance(dt)
		}
	}
}

// Start runs the controller until the simulated duration has elapsed,
// in a separate goroutine. It returns a channel that is closed when the
// controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		for {
			if duration > 0 && tc.Elapsed() >= duration.Seconds() {
				return
			}
			<-ticker.C
			tc.Step()
		}
	}()
	return done
}

func (tc *TimeController) multiplier() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.Multiplier
}

func (tc *TimeController) advance(dt float64) {
	tc.mu.Lock()
	tc.elapsed += dt
	tc.currentTime = tc.currentTime.Add(time.Duration(dt * float64(time.Second)))
	tc.mu.Unlock()

	for _, fn := range tc.listeners {
		fn(dt)
	}
}
