package interview

import (
	"strings"

	"github.com/prepcall/prepcall/pkg/types"
)

// Detector decides, from transcript content and ordering alone, whether the
// interview has concluded. The predicate is deliberately conservative: a
// false positive cuts a live interview short, so every condition must hold.
type Detector struct {
	// ClosingMarkers are substrings of the normalized final agent message
	// that signal a farewell. Defaults match the hosted agent's closing
	// script ("Thank you so much... have a great day!").
	ClosingMarkers []string

	rules Rules
}

// NewDetector returns a Detector with the default closing markers. rules is
// the classification table used to tell the agent's questions apart from its
// pleasantries; a zero value uses [DefaultRules].
func NewDetector(rules Rules) *Detector {
	if len(rules.Greetings) == 0 && len(rules.Acknowledgments) == 0 && len(rules.Closings) == 0 {
		rules = DefaultRules()
	}
	return &Detector{
		ClosingMarkers: []string{"have a great day", "thank"},
		rules:          rules,
	}
}

// ShouldTerminate reports whether the transcript signals interview
// completion. All of the following must hold:
//
//   - the transcript's final message is from the agent;
//   - its normalized text contains a closing marker;
//   - the candidate engaged: a local message exists at or after the last
//     question the agent actually asked.
//
// A transcript whose closing-looking agent message is followed by any later
// message is not terminal — the conversation is still moving.
func (d *Detector) ShouldTerminate(transcript types.Transcript) bool {
	if len(transcript) == 0 {
		return false
	}

	lastAgent := transcript.LastAgentIndex()
	if lastAgent == -1 || lastAgent != len(transcript)-1 {
		return false
	}

	normalized := normalize(transcript[lastAgent].Text)
	if !d.containsMarker(normalized) {
		return false
	}

	lastUser := transcript.LastUserIndex()
	if lastUser == -1 {
		return false
	}

	// The candidate must have spoken since the last question the agent
	// asked. Agents often split a farewell across consecutive utterances
	// ("Thanks for your time." then "Have a great day!"), so walk back past
	// trailing pleasantries to the most recent real question.
	prevQuestion := -1
	for i := lastAgent - 1; i >= 0; i-- {
		if transcript[i].Origin != types.OriginRemote {
			continue
		}
		if d.rules.Classify(transcript[i].Text) == KindQuestion {
			prevQuestion = i
			break
		}
	}
	return lastUser >= prevQuestion
}

func (d *Detector) containsMarker(normalized string) bool {
	markers := d.ClosingMarkers
	if len(markers) == 0 {
		markers = []string{"have a great day", "thank"}
	}
	for _, m := range markers {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	return false
}

// normalize lowercases text and strips every character outside [a-z0-9 ],
// collapsing punctuation so "Thank you!" and "thank you" compare equal.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
