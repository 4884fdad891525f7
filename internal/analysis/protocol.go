package analysis

import (
	"encoding/json"

	"github.com/prepcall/prepcall/pkg/types"
)

// Wire message type tags, as defined by the analysis service.
const (
	typeVideoFrame     = "video_frame"
	typePing           = "ping"
	typePong           = "pong"
	typeAnalysisResult = "analysis_result"
	typeError          = "error"
)

// frameData is the payload of an outbound video_frame message.
type frameData struct {
	// Image is a base64 JPEG data URL.
	Image string `json:"image"`

	// Timestamp is a client-side monotonically increasing value in Unix
	// milliseconds, used by the service to order frames.
	Timestamp int64 `json:"timestamp"`

	// ClientID correlates frames with the per-session connection.
	ClientID string `json:"client_id"`
}

// frameMessage is an outbound camera frame.
type frameMessage struct {
	Type string    `json:"type"`
	Data frameData `json:"data"`
}

// pingMessage is the outbound keep-alive.
type pingMessage struct {
	Type string `json:"type"`
}

// envelope is the inbound message frame. Data stays raw until the type tag
// has been inspected so unknown payload shapes never fail the whole read.
type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// analysisPayload is the data field of an analysis_result message.
type analysisPayload struct {
	Analysis  types.AnalysisResult `json:"analysis"`
	Timestamp float64              `json:"timestamp"`
}
