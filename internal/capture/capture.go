// Package capture abstracts the local camera as a stream of raster frames.
//
// The analysis stream client consumes a [Source] without knowing whether the
// frames come from real hardware or a synthetic generator; the mock
// subpackage provides the latter for tests. A Source is exclusively owned by
// one analysis client per session — Close must complete before another
// client may open the device.
package capture

import (
	"image"
	"time"
)

// Frame is a single captured video frame.
type Frame struct {
	// Image is the decoded raster data.
	Image image.Image

	// CapturedAt is when the frame was read from the device.
	CapturedAt time.Time
}

// Source produces frames from a camera or equivalent device.
//
// Implementations must be safe for concurrent use and must make Close
// idempotent: releasing hardware twice is a no-op, never a panic.
type Source interface {
	// Frames returns the channel frames are delivered on. The channel is
	// closed when the source is closed or the device fails.
	Frames() <-chan Frame

	// Close releases the underlying device. Safe to call multiple times.
	Close() error
}
