// Package types defines the shared types used across all Prepcall packages.
//
// These types form the lingua franca between the transcript aggregator, the
// interview heuristics, the analysis stream client, and the session
// controller. They are intentionally minimal — each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// Origin identifies which side of the conversation produced a message.
type Origin string

const (
	// OriginLocal marks an utterance by the candidate (the user).
	OriginLocal Origin = "local"

	// OriginRemote marks an utterance by the interviewing voice agent.
	OriginRemote Origin = "remote"
)

// IsValid reports whether o is a recognised origin.
func (o Origin) IsValid() bool {
	return o == OriginLocal || o == OriginRemote
}

// Message is a single utterance in the interview conversation. Messages are
// produced by two independent feeds (live transcription and text chat) and
// are immutable once created.
type Message struct {
	// ID uniquely identifies the message within its feed.
	ID string

	// TimestampMs is the capture time in Unix milliseconds. Each feed
	// delivers messages in non-decreasing TimestampMs order, but the two
	// feeds are not ordered relative to each other.
	TimestampMs int64

	// Origin records who spoke.
	Origin Origin

	// Text is the utterance content.
	Text string
}

// Transcript is a time-ordered sequence of messages. For any i < j,
// Transcript[i].TimestampMs <= Transcript[j].TimestampMs.
type Transcript []Message

// LastAgentIndex returns the highest index whose origin is remote, or -1.
func (t Transcript) LastAgentIndex() int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Origin == OriginRemote {
			return i
		}
	}
	return -1
}

// LastUserIndex returns the highest index whose origin is local, or -1.
func (t Transcript) LastUserIndex() int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Origin == OriginLocal {
			return i
		}
	}
	return -1
}

// NoAnswer is the sentinel answer recorded when no user message follows a
// question before the next question or the end of the transcript.
const NoAnswer = "No answer provided"

// QAPair is one extracted question together with the candidate's answer.
type QAPair struct {
	Question string
	Answer   string
}

// AnalysisResult is the latest structured payload received from the vision
// analysis service. Field names follow the service's wire format. The zero
// value means "no result received yet".
type AnalysisResult struct {
	FaceDetected       bool           `json:"face_detected"`
	FaceCount          int            `json:"face_count"`
	Confidence         float64        `json:"confidence"`
	AttentionScore     float64        `json:"attention_score"`
	EngagementLevel    string         `json:"engagement_level"`
	EyeTracking        map[string]any `json:"eye_tracking,omitempty"`
	HeadPose           map[string]any `json:"head_pose,omitempty"`
	SuspiciousBehavior []string       `json:"suspicious_behavior,omitempty"`
	Recommendations    []string       `json:"recommendations,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// QuestionFeedback is the per-question verdict inside an evaluation result.
type QuestionFeedback struct {
	QuestionNumber int      `json:"question_number"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Score          int      `json:"score"`
	Feedback       string   `json:"feedback"`
	Strengths      []string `json:"strengths,omitempty"`
	Improvements   []string `json:"improvements,omitempty"`
}

// EvaluationResult is the score payload returned by the evaluation
// collaborator. The session core treats it opaquely beyond caching it; the
// fields exist so results can be stored and redisplayed.
type EvaluationResult struct {
	SessionID           string             `json:"session_id"`
	TotalScore          int                `json:"total_score"`
	MaxScore            int                `json:"max_score"`
	Percentage          float64            `json:"percentage"`
	QuestionsEvaluated  int                `json:"questions_evaluated"`
	OverallAnalysis     string             `json:"overall_analysis"`
	DetailedFeedback    []QuestionFeedback `json:"detailed_feedback,omitempty"`
	Strengths           []string           `json:"strengths,omitempty"`
	AreasForImprovement []string           `json:"areas_for_improvement,omitempty"`
	Recommendations     []string           `json:"recommendations,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
}
