package timectrl

import (
	"math"
	"testing"
	"time"
)

func TestRealTimeStepScalesByMultiplier(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	var dts []float64
	tc.AddListener(func(dt float64) { dts = append(dts, dt) })

	tc.Step()
	tc.SetMultiplier(4)
	tc.Step()

	if len(dts) != 2 || dts[0] != 1.0 || dts[1] != 4.0 {
		t.Fatalf("listener dts = %v, want [1 4]", dts)
	}
	if got := tc.Elapsed(); math.Abs(got-5.0) > 1e-9 {
		t.Fatalf("Elapsed = %v, want 5", got)
	}
	if got := tc.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("Now = %v, want start+5s", got)
	}
}

func TestSetMultiplierIgnoresNonPositive(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Second, RealTime)
	tc.SetMultiplier(0)
	tc.SetMultiplier(-3)
	if tc.Multiplier != 1 {
		t.Fatalf("Multiplier = %v, want 1", tc.Multiplier)
	}
}

func TestUnboundedStepRunsBurstAtTickLength(t *testing.T) {
	tc := NewTimeController(time.Now(), 500*time.Millisecond, Unbounded)
	tc.BurstTicks = 10

	calls := 0
	tc.AddListener(func(dt float64) {
		calls++
		// Burst ticks run at the unscaled tick length.
		if math.Abs(dt-0.5) > 1e-9 {
			t.Fatalf("burst dt = %v, want 0.5", dt)
		}
	})

	tc.Step()
	if calls != 10 {
		t.Fatalf("listener calls = %d, want 10", calls)
	}
	if got := tc.Elapsed(); math.Abs(got-5.0) > 1e-9 {
		t.Fatalf("Elapsed = %v, want 5", got)
	}
}

func TestStartStopsAfterDuration(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Millisecond, Unbounded)
	tc.BurstTicks = 100

	done := tc.Start(50 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("controller did not finish within 5s wall clock")
	}
	if got := tc.Elapsed(); got < 0.05 {
		t.Fatalf("Elapsed = %v, want at least 0.05 simulated seconds", got)
	}
}
