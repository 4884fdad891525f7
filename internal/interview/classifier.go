// Package interview implements the content heuristics of a practice
// interview: classifying agent utterances, pairing questions with the
// candidate's answers, and detecting when the interview has concluded.
//
// All functions in this package are pure — they read a transcript snapshot
// and return a result without side effects — so every transcript update can
// be evaluated against a single consistent view.
package interview

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Kind is the classification assigned to an agent utterance.
type Kind int

const (
	// KindQuestion marks an utterance that counts as a real interview question.
	KindQuestion Kind = iota

	// KindGreeting marks a greeting ("hello", "welcome").
	KindGreeting

	// KindInstruction marks a control phrase ("say hello", "start the interview").
	KindInstruction

	// KindAcknowledgment marks an affirmation of the previous answer
	// ("thank you", "great") that does not itself ask anything.
	KindAcknowledgment

	// KindClosing marks a farewell ("thank you so much", "have a great day").
	KindClosing
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindGreeting:
		return "greeting"
	case KindInstruction:
		return "instruction"
	case KindAcknowledgment:
		return "acknowledgment"
	case KindClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Rules is the configurable classification rule table. The boundaries of
// utterance classification are a policy choice, not a hidden requirement, so
// the token lists are plain data that callers may override via config.
//
// Evaluation precedence: an utterance containing a question mark is always a
// question, regardless of any other token it contains. Otherwise the
// exclusion lists are checked in order: greetings, instructions,
// acknowledgments, closings. An acknowledgment token does not exclude an
// utterance that also contains the word "question" (the agent announcing the
// next question).
type Rules struct {
	// Greetings are tokens that mark a greeting.
	Greetings []string

	// Instructions are control phrases directed at the agent itself.
	Instructions []string

	// Acknowledgments are affirming tokens that follow an answer.
	Acknowledgments []string

	// Closings are farewell phrases that end the interview.
	Closings []string

	// FuzzyThreshold enables Jaro-Winkler matching of multi-word phrases at
	// or above this similarity, tolerating transcription mishearings
	// ("have a grate day"). Zero disables fuzzy matching; single-word tokens
	// always use exact substring containment.
	FuzzyThreshold float64
}

// DefaultRules returns the rule table used by the hosted interview agent.
func DefaultRules() Rules {
	return Rules{
		Greetings:       []string{"hello", "welcome", "hi", "greet"},
		Instructions:    []string{"say hello", "start the interview"},
		Acknowledgments: []string{"thank you", "great", "excellent", "good", "thanks"},
		Closings:        []string{"thank you so much", "have a great day", "we'll be in touch"},
		FuzzyThreshold:  0.92,
	}
}

// Classify assigns a [Kind] to an agent utterance.
func (r Rules) Classify(text string) Kind {
	lower := strings.ToLower(text)

	// A question mark always wins: genuine questions phrased with greeting or
	// acknowledgment vocabulary ("Great, now can you describe X?") still count.
	if strings.Contains(lower, "?") {
		return KindQuestion
	}

	switch {
	case r.containsAny(lower, r.Greetings):
		return KindGreeting
	case r.containsAny(lower, r.Instructions):
		return KindInstruction
	case r.containsAny(lower, r.Acknowledgments) && !strings.Contains(lower, "question"):
		return KindAcknowledgment
	case r.containsAny(lower, r.Closings):
		return KindClosing
	default:
		return KindQuestion
	}
}

// containsAny reports whether text contains any of the tokens. Multi-word
// tokens additionally try a fuzzy window match when FuzzyThreshold is set.
func (r Rules) containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(text, tok) {
			return true
		}
		if r.FuzzyThreshold > 0 && strings.Contains(tok, " ") {
			if fuzzyContains(text, tok, r.FuzzyThreshold) {
				return true
			}
		}
	}
	return false
}

// fuzzyContains slides a window of len(words(phrase)) words over text and
// reports whether any window is Jaro-Winkler similar to phrase at or above
// threshold. Only called for multi-word phrases, where mishearings of one
// word still leave a recognisable whole.
func fuzzyContains(text, phrase string, threshold float64) bool {
	phraseWords := strings.Fields(phrase)
	textWords := strings.Fields(text)
	n := len(phraseWords)
	if n == 0 || len(textWords) < n {
		return false
	}
	for i := 0; i+n <= len(textWords); i++ {
		window := strings.Join(textWords[i:i+n], " ")
		if matchr.JaroWinkler(window, phrase, false) >= threshold {
			return true
		}
	}
	return false
}
