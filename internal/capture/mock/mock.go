// Package mock provides a synthetic capture source for tests and for running
// without camera hardware.
package mock

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/prepcall/prepcall/internal/capture"
)

// Source generates flat-colour frames at a fixed rate. It implements
// [capture.Source].
type Source struct {
	frames chan capture.Frame
	done   chan struct{}
	once   sync.Once
}

// NewSource starts generating width×height frames every interval.
// interval <= 0 defaults to 33ms (~30 fps, typical webcam output).
func NewSource(width, height int, interval time.Duration) *Source {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	s := &Source{
		frames: make(chan capture.Frame, 4),
		done:   make(chan struct{}),
	}
	go s.run(width, height, interval)
	return s
}

// Frames implements [capture.Source].
func (s *Source) Frames() <-chan capture.Frame { return s.frames }

// Close implements [capture.Source]. Safe to call multiple times.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *Source) run(width, height int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.frames)

	shade := uint8(0)
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			img := image.NewRGBA(image.Rect(0, 0, width, height))
			// Vary the fill so consecutive frames differ.
			c := color.RGBA{R: shade, G: 128, B: 255 - shade, A: 255}
			for i := 0; i < len(img.Pix); i += 4 {
				img.Pix[i] = c.R
				img.Pix[i+1] = c.G
				img.Pix[i+2] = c.B
				img.Pix[i+3] = c.A
			}
			shade += 16

			select {
			case s.frames <- capture.Frame{Image: img, CapturedAt: now}:
			case <-s.done:
				return
			default:
				// Drop the frame if the consumer is behind; cameras do not wait.
			}
		}
	}
}
