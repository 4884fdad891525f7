package analysis

import (
	"testing"
	"time"
)

// A camera delivering at double the target rate has half its frames dropped:
// over a simulated one-second window of ticks at 2x fps, admissions never
// exceed the target.
func TestFrameGate_CapsAtTargetFPS(t *testing.T) {
	const targetFPS = 10
	gate := NewFrameGate(targetFPS)

	start := time.Unix(1700000000, 0)
	tick := time.Second / (2 * targetFPS)

	admitted := 0
	for i := 0; i < 2*targetFPS; i++ {
		if gate.Admit(start.Add(time.Duration(i) * tick)) {
			admitted++
		}
	}

	if admitted > targetFPS {
		t.Errorf("admitted = %d frames in 1s, want <= %d", admitted, targetFPS)
	}
	if admitted < targetFPS-1 {
		t.Errorf("admitted = %d frames in 1s, want close to %d", admitted, targetFPS)
	}
}

// A slow camera under-fills; every frame passes.
func TestFrameGate_SlowSourcePassesThrough(t *testing.T) {
	gate := NewFrameGate(10)

	start := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		at := start.Add(time.Duration(i) * 500 * time.Millisecond)
		if !gate.Admit(at) {
			t.Errorf("frame %d at %v rejected, want admitted", i, at)
		}
	}
}

// A burst after a long idle gap is still strictly paced: only one frame of
// the burst goes through.
func TestFrameGate_NoBunchingAfterGap(t *testing.T) {
	gate := NewFrameGate(10)

	start := time.Unix(1700000000, 0)
	if !gate.Admit(start) {
		t.Fatal("first frame rejected")
	}

	burstAt := start.Add(5 * time.Second)
	admitted := 0
	for i := 0; i < 5; i++ {
		if gate.Admit(burstAt) {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("admitted = %d frames of an instantaneous burst, want 1", admitted)
	}
}

func TestNewFrameGate_DefaultsOnZero(t *testing.T) {
	gate := NewFrameGate(0)
	if gate == nil {
		t.Fatal("NewFrameGate(0) = nil")
	}
	if !gate.Admit(time.Unix(1700000000, 0)) {
		t.Error("first frame rejected with default fps")
	}
}
