package auth

import (
	"testing"
	"time"
)

func TestTimingDelay_NoDelayOnSuccess(t *testing.T) {
	delay := NewTimingDelay(TimingConfig{BaseDelayMs: 50})

	start := time.Now()
	delay.Wait(true)
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("success path slept %v", elapsed)
	}
}

func TestTimingDelay_DelaysOnFailure(t *testing.T) {
	delay := NewTimingDelay(TimingConfig{BaseDelayMs: 20})

	start := time.Now()
	delay.Wait(false)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("failure path slept only %v", elapsed)
	}
}

func TestTimingDelay_WaitFromCountsElapsedTime(t *testing.T) {
	delay := NewTimingDelay(TimingConfig{BaseDelayMs: 30})

	start := time.Now().Add(-25 * time.Millisecond)
	delay.WaitFrom(start, false)

	// Only the remaining ~5ms should have been slept
	if total := time.Since(start); total > 100*time.Millisecond {
		t.Errorf("total elapsed %v, expected roughly the 30ms target", total)
	}
}

func TestTimingDelay_ZeroConfigIsNoop(t *testing.T) {
	delay := NewTimingDelay(TimingConfig{})

	start := time.Now()
	delay.Wait(false)
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("zero config slept %v", elapsed)
	}
}
