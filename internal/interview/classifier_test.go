package interview

import "testing"

func TestClassify_DefaultRules(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		text string
		want Kind
	}{
		{"Hello! Welcome to your practice interview.", KindGreeting},
		{"Hi there, I'm your interviewer today.", KindGreeting},
		{"Start the interview now.", KindInstruction},
		// Greeting tokens take precedence over instruction phrases.
		{"Say hello to the candidate", KindGreeting},
		{"Thank you for that answer.", KindAcknowledgment},
		{"Excellent. Let's move on.", KindAcknowledgment},
		{"We'll be in touch.", KindClosing},
		{"Can you tell me about yourself?", KindQuestion},
		{"Describe a conflict you resolved.", KindQuestion},
		// A question mark always wins, even with acknowledgment vocabulary.
		{"Great, now can you describe your biggest weakness?", KindQuestion},
		// An acknowledgment token does not swallow a question announcement.
		{"Thanks. Here comes the next question.", KindQuestion},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			if got := rules.Classify(tc.text); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

// Multi-word phrases still match when the transcription misheard a word.
func TestClassify_FuzzyPhraseMatch(t *testing.T) {
	rules := DefaultRules()

	// "grate" for "great": close enough to the closing phrase.
	if got := rules.Classify("Have a grate day"); got != KindClosing {
		t.Errorf("Classify misheard closing = %s, want %s", got, KindClosing)
	}

	// With fuzzy matching disabled the mishearing falls through to question.
	rules.FuzzyThreshold = 0
	if got := rules.Classify("Have a grate day"); got != KindQuestion {
		t.Errorf("Classify without fuzzy = %s, want %s", got, KindQuestion)
	}
}

func TestClassify_FuzzyRespectsThreshold(t *testing.T) {
	rules := DefaultRules()
	rules.FuzzyThreshold = 0.999

	// An exact containment still matches at any threshold.
	if got := rules.Classify("We'll be in touch soon."); got != KindClosing {
		t.Errorf("exact phrase = %s, want %s", got, KindClosing)
	}
	// The mishearing no longer clears a near-exact threshold.
	if got := rules.Classify("Have a grate day"); got != KindQuestion {
		t.Errorf("misheard phrase at strict threshold = %s, want %s", got, KindQuestion)
	}
}

func TestClassify_EmptyRules(t *testing.T) {
	var rules Rules
	if got := rules.Classify("anything at all"); got != KindQuestion {
		t.Errorf("Classify with empty rules = %s, want %s", got, KindQuestion)
	}
}
