// Package transcript merges the two independent conversation feeds of an
// interview session — live transcription and text chat — into a single
// time-ordered transcript.
//
// Each feed delivers messages in non-decreasing timestamp order, but the two
// feeds are not coordinated with each other. The [Aggregator] re-merges the
// full transcript on every append rather than maintaining an incremental
// merge: transcripts are tens of messages long, and a full stable sort per
// update guarantees that every subscriber observes a complete, consistent
// snapshot with no partial-update races.
package transcript

import (
	"sort"
	"sync"

	"github.com/prepcall/prepcall/pkg/types"
)

// Feed identifies which input feed a message arrived on.
type Feed int

const (
	// FeedTranscription is the live speech-transcription feed.
	FeedTranscription Feed = iota

	// FeedChat is the text-chat feed.
	FeedChat
)

// Listener receives the merged transcript after every update. The snapshot
// is an independent copy; listeners may retain it without further
// synchronisation.
type Listener func(snapshot types.Transcript)

// Aggregator merges two append-only message feeds into one transcript that
// is globally non-decreasing in timestamp. All methods are safe for
// concurrent use.
type Aggregator struct {
	mu            sync.Mutex
	transcription []types.Message
	chat          []types.Message

	nextListener int
	listeners    map[int]Listener
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{listeners: make(map[int]Listener)}
}

// Append records msg on the given feed and notifies subscribers with the
// newly merged snapshot. Listeners are invoked synchronously, on the caller's
// goroutine, so a listener and the snapshot it received always correspond.
func (a *Aggregator) Append(feed Feed, msg types.Message) {
	a.mu.Lock()
	switch feed {
	case FeedChat:
		a.chat = append(a.chat, msg)
	default:
		a.transcription = append(a.transcription, msg)
	}
	snapshot := a.mergeLocked()
	listeners := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// Snapshot returns the current merged transcript as an independent copy.
func (a *Aggregator) Snapshot() types.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mergeLocked()
}

// Len returns the total number of messages across both feeds.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transcription) + len(a.chat)
}

// Subscribe registers fn to be called with the merged snapshot after every
// append. The returned disposer removes the subscription; it is safe to call
// more than once.
func (a *Aggregator) Subscribe(fn Listener) (dispose func()) {
	a.mu.Lock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// mergeLocked produces the merged transcript. Callers must hold a.mu.
//
// sort.SliceStable keeps the relative order of equal timestamps, so messages
// within one feed never reorder even when timestamps collide.
func (a *Aggregator) mergeLocked() types.Transcript {
	merged := make(types.Transcript, 0, len(a.transcription)+len(a.chat))
	merged = append(merged, a.transcription...)
	merged = append(merged, a.chat...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TimestampMs < merged[j].TimestampMs
	})
	return merged
}
