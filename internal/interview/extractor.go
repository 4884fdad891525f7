package interview

import (
	"github.com/prepcall/prepcall/pkg/types"
)

// DefaultMaxQuestions is the number of questions in a hosted practice
// interview. The evaluation collaborator scores exactly this many pairs.
const DefaultMaxQuestions = 3

// Extractor pairs real questions from the agent with the candidate's answers.
// The zero value is not usable; construct with [NewExtractor].
type Extractor struct {
	rules        Rules
	maxQuestions int
}

// NewExtractor creates an Extractor with the given rule table.
// maxQuestions <= 0 falls back to [DefaultMaxQuestions].
func NewExtractor(rules Rules, maxQuestions int) *Extractor {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	return &Extractor{rules: rules, maxQuestions: maxQuestions}
}

// Extract scans the transcript for agent utterances that classify as real
// questions and pairs each with the first local message that follows it. A
// question with no subsequent local message before the transcript ends is
// paired with [types.NoAnswer]. At most maxQuestions pairs are returned, in
// transcript order. An empty transcript yields an empty list.
func (e *Extractor) Extract(transcript types.Transcript) []types.QAPair {
	pairs := make([]types.QAPair, 0, e.maxQuestions)

	for i, msg := range transcript {
		if len(pairs) >= e.maxQuestions {
			break
		}
		if msg.Origin != types.OriginRemote {
			continue
		}
		if e.rules.Classify(msg.Text) != KindQuestion {
			continue
		}

		answer := types.NoAnswer
		for j := i + 1; j < len(transcript); j++ {
			if transcript[j].Origin == types.OriginLocal {
				answer = transcript[j].Text
				break
			}
		}
		pairs = append(pairs, types.QAPair{Question: msg.Text, Answer: answer})
	}

	return pairs
}

// Questions returns just the question strings of Extract, in order.
func (e *Extractor) Questions(transcript types.Transcript) []string {
	pairs := e.Extract(transcript)
	qs := make([]string, len(pairs))
	for i, p := range pairs {
		qs[i] = p.Question
	}
	return qs
}
