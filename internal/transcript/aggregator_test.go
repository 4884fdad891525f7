package transcript

import (
	"fmt"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/prepcall/prepcall/pkg/types"
)

func msg(origin types.Origin, ts int64, text string) types.Message {
	return types.Message{
		ID:          fmt.Sprintf("%s-%d", origin, ts),
		TimestampMs: ts,
		Origin:      origin,
		Text:        text,
	}
}

func TestAppend_MergesBothFeeds(t *testing.T) {
	a := NewAggregator()

	a.Append(FeedTranscription, msg(types.OriginRemote, 100, "first question"))
	a.Append(FeedChat, msg(types.OriginLocal, 50, "early chat"))
	a.Append(FeedTranscription, msg(types.OriginLocal, 150, "spoken answer"))

	got := a.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []int64{50, 100, 150}
	for i, w := range want {
		if got[i].TimestampMs != w {
			t.Errorf("snapshot[%d].TimestampMs = %d, want %d", i, got[i].TimestampMs, w)
		}
	}
}

// Messages within one feed must keep their arrival order even when their
// timestamps collide.
func TestMerge_StableOnEqualTimestamps(t *testing.T) {
	a := NewAggregator()

	a.Append(FeedTranscription, msg(types.OriginRemote, 100, "a"))
	a.Append(FeedTranscription, msg(types.OriginRemote, 100, "b"))
	a.Append(FeedTranscription, msg(types.OriginRemote, 100, "c"))

	got := a.Snapshot()
	if got[0].Text != "a" || got[1].Text != "b" || got[2].Text != "c" {
		t.Errorf("order = %q %q %q, want a b c", got[0].Text, got[1].Text, got[2].Text)
	}
}

// For any interleaving of two independently-ordered feeds, the merged
// transcript is non-decreasing in timestamp and loses no messages.
func TestMerge_NonDecreasing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := NewAggregator()

		tsGen := rapid.Int64Range(0, 10_000)
		transcription := rapid.SliceOfN(tsGen, 0, 40).Draw(rt, "transcription")
		chat := rapid.SliceOfN(tsGen, 0, 40).Draw(rt, "chat")

		// Each feed delivers in non-decreasing timestamp order.
		sortInt64(transcription)
		sortInt64(chat)

		ti, ci := 0, 0
		for ti < len(transcription) || ci < len(chat) {
			pickTranscription := ci >= len(chat) ||
				(ti < len(transcription) && rapid.Bool().Draw(rt, "pick"))
			if pickTranscription {
				a.Append(FeedTranscription, msg(types.OriginRemote, transcription[ti], "t"))
				ti++
			} else {
				a.Append(FeedChat, msg(types.OriginLocal, chat[ci], "c"))
				ci++
			}
		}

		got := a.Snapshot()
		if len(got) != len(transcription)+len(chat) {
			rt.Fatalf("len = %d, want %d", len(got), len(transcription)+len(chat))
		}
		for i := 1; i < len(got); i++ {
			if got[i].TimestampMs < got[i-1].TimestampMs {
				rt.Fatalf("timestamps decrease at %d: %d < %d", i, got[i].TimestampMs, got[i-1].TimestampMs)
			}
		}
	})
}

func sortInt64(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func TestSubscribe_NotifiesWithFullSnapshot(t *testing.T) {
	a := NewAggregator()

	var snapshots []types.Transcript
	a.Subscribe(func(snapshot types.Transcript) {
		snapshots = append(snapshots, snapshot)
	})

	a.Append(FeedTranscription, msg(types.OriginRemote, 1, "one"))
	a.Append(FeedChat, msg(types.OriginLocal, 2, "two"))

	if len(snapshots) != 2 {
		t.Fatalf("notifications = %d, want 2", len(snapshots))
	}
	if len(snapshots[0]) != 1 || len(snapshots[1]) != 2 {
		t.Errorf("snapshot sizes = %d, %d, want 1, 2", len(snapshots[0]), len(snapshots[1]))
	}
}

func TestSubscribe_DisposerStopsNotifications(t *testing.T) {
	a := NewAggregator()

	calls := 0
	dispose := a.Subscribe(func(types.Transcript) { calls++ })

	a.Append(FeedTranscription, msg(types.OriginRemote, 1, "one"))
	dispose()
	dispose() // second call is a no-op
	a.Append(FeedTranscription, msg(types.OriginRemote, 2, "two"))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	a := NewAggregator()
	a.Append(FeedTranscription, msg(types.OriginRemote, 1, "original"))

	snap := a.Snapshot()
	snap[0].Text = "mutated"

	if got := a.Snapshot()[0].Text; got != "original" {
		t.Errorf("stored text = %q, want %q", got, "original")
	}
}

func TestAppend_ConcurrentFeeds(t *testing.T) {
	a := NewAggregator()

	var wg sync.WaitGroup
	for f := 0; f < 2; f++ {
		feed := Feed(f)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int64(0); i < 50; i++ {
				a.Append(feed, msg(types.OriginLocal, i, "x"))
			}
		}()
	}
	wg.Wait()

	if got := a.Len(); got != 100 {
		t.Errorf("Len = %d, want 100", got)
	}
	snap := a.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i].TimestampMs < snap[i-1].TimestampMs {
			t.Fatalf("timestamps decrease at %d", i)
		}
	}
}
