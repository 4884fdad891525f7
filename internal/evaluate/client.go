// Package evaluate is the HTTP client for the external evaluation
// collaborator: the service that scores a finished interview from its
// transcript and question/answer pairs.
//
// Scoring is best-effort from the session's point of view — a failed
// submission is logged by the caller and the session still finalizes.
package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prepcall/prepcall/pkg/types"
)

// defaultTimeout bounds an evaluation round-trip. Scoring runs an LLM on the
// server side, so the budget is generous compared to the other calls.
const defaultTimeout = 30 * time.Second

// conversationMessage is the wire form of a transcript message.
type conversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// submission is the evaluate request body.
type submission struct {
	SessionID    string                `json:"session_id"`
	Conversation []conversationMessage `json:"conversation"`
	Questions    []string              `json:"questions"`
	Answers      []string              `json:"answers"`
}

// Client calls the evaluation service. The zero value is not usable;
// construct with [NewClient]. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a Client for the service at baseURL
// (e.g. "http://host/interview"). baseURL must be non-empty.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("evaluate: baseURL must not be empty")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Evaluate submits the finished session for scoring and returns the result.
// questions and answers are parallel slices in question order.
func (c *Client) Evaluate(ctx context.Context, sessionID string, transcript types.Transcript, pairs []types.QAPair) (*types.EvaluationResult, error) {
	conversation := make([]conversationMessage, len(transcript))
	for i, msg := range transcript {
		role := "user"
		if msg.Origin == types.OriginRemote {
			role = "assistant"
		}
		conversation[i] = conversationMessage{
			Role:      role,
			Content:   msg.Text,
			Timestamp: time.UnixMilli(msg.TimestampMs).UTC(),
		}
	}

	questions := make([]string, len(pairs))
	answers := make([]string, len(pairs))
	for i, p := range pairs {
		questions[i] = p.Question
		answers[i] = p.Answer
	}

	body := submission{
		SessionID:    sessionID,
		Conversation: conversation,
		Questions:    questions,
		Answers:      answers,
	}

	var result types.EvaluationResult
	if err := c.postJSON(ctx, c.baseURL+"/evaluate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Result fetches a previously evaluated session by id.
func (c *Client) Result(ctx context.Context, sessionID string) (*types.EvaluationResult, error) {
	var result types.EvaluationResult
	if err := c.getJSON(ctx, c.baseURL+"/"+sessionID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History fetches the caller's past evaluation results, newest first.
func (c *Client) History(ctx context.Context) ([]types.EvaluationResult, error) {
	var results []types.EvaluationResult
	if err := c.getJSON(ctx, c.baseURL+"/history", &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("evaluate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("evaluate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("evaluate: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("evaluate: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded amount of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("evaluate: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("evaluate: decode response: %w", err)
	}
	return nil
}
