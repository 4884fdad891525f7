package analysis

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultTargetFPS is the frame rate the client aims to send at. The camera
// produces frames faster than this; the gate discards the excess.
const DefaultTargetFPS = 10

// FrameGate rate-limits outbound frames to a target fps. It is a cooperative
// limiter: frames arriving faster than the target are dropped, and a camera
// delivering slower than the target simply under-fills — the gate never
// waits or buffers. Safe for concurrent use.
type FrameGate struct {
	limiter *rate.Limiter
}

// NewFrameGate creates a gate admitting at most targetFPS frames per second.
// targetFPS <= 0 falls back to [DefaultTargetFPS].
func NewFrameGate(targetFPS int) *FrameGate {
	if targetFPS <= 0 {
		targetFPS = DefaultTargetFPS
	}
	// Burst of 1: admission is strictly paced, never bunched after a gap.
	return &FrameGate{limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(targetFPS)), 1)}
}

// Admit reports whether a frame captured at t may be sent. The decision is a
// pure function of the capture timestamps seen so far, which keeps pacing
// deterministic under test.
func (g *FrameGate) Admit(t time.Time) bool {
	return g.limiter.AllowN(t, 1)
}
