package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepcall/prepcall/internal/analysis"
	"github.com/prepcall/prepcall/internal/capture"
	"github.com/prepcall/prepcall/internal/interview"
	"github.com/prepcall/prepcall/internal/observe"
	"github.com/prepcall/prepcall/internal/transcript"
	"github.com/prepcall/prepcall/pkg/types"
)

// DefaultAgentTimeout is how long after Start the voice agent may take to
// produce its first utterance before the session is aborted.
const DefaultAgentTimeout = 10 * time.Second

// Evaluator scores a finished interview. Implemented by [evaluate.Client].
type Evaluator interface {
	Evaluate(ctx context.Context, sessionID string, transcript types.Transcript, pairs []types.QAPair) (*types.EvaluationResult, error)
}

// ResultCache is the local result cache consulted by the results view.
// Implemented by [store.Cache].
type ResultCache interface {
	Put(result *types.EvaluationResult) error
}

// RemoteStore is the durable, best-effort result store. Implemented by
// [store.PostgresStore].
type RemoteStore interface {
	Put(ctx context.Context, result *types.EvaluationResult) error
}

// FinalizedHandler receives the evaluation result when the session
// finalizes. result is nil when evaluation failed or was skipped — the
// handler must still navigate away; a stuck session is worse than a missing
// score. Invoked exactly once per session.
type FinalizedHandler func(result *types.EvaluationResult)

// NoticeHandler receives user-visible notices (agent unavailable, analysis
// stream failed) that do not end the session by themselves.
type NoticeHandler func(notice string)

// Config holds the dependencies and policy for a [Controller].
type Config struct {
	// SessionID identifies the session. Required.
	SessionID string

	// ClientID is the opaque identifier correlating analysis frames and
	// results. Generated when empty.
	ClientID string

	// Rules is the utterance classification table. Zero value uses
	// [interview.DefaultRules].
	Rules interview.Rules

	// MaxQuestions caps extracted pairs. <= 0 uses the default policy.
	MaxQuestions int

	// Registry tracks the active stream client per session. Required when
	// Stream is set.
	Registry *Registry

	// Stream is the analysis stream client. Optional: a session without
	// camera analysis is still a valid interview.
	Stream *analysis.Client

	// Source is the camera source handed to Stream on start.
	Source capture.Source

	// Camera issues the service-side camera start/stop calls. Optional.
	Camera *analysis.CameraControl

	// Evaluator scores the interview at finalize. Optional; without it the
	// session finalizes with a nil result.
	Evaluator Evaluator

	// Cache receives the result before navigation. Optional.
	Cache ResultCache

	// Remote receives a best-effort durable copy of the result. Optional.
	Remote RemoteStore

	// Metrics records session instrumentation. Nil disables recording.
	Metrics *observe.Metrics

	// AgentTimeout aborts the session if the agent never speaks. <= 0 uses
	// [DefaultAgentTimeout].
	AgentTimeout time.Duration

	// OnFinalized is the navigation callback. Required.
	OnFinalized FinalizedHandler

	// OnNotice surfaces user-visible notices. Optional.
	OnNotice NoticeHandler
}

// Controller coordinates one interview session. It owns the transcript
// aggregator, consults the extractor and detector on every update, and
// guarantees the finalize sequence runs at most once regardless of which
// trigger paths fire, or how many fire concurrently.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	cfg       Config
	agg       *transcript.Aggregator
	extractor *interview.Extractor
	detector  *interview.Detector

	mu    sync.Mutex
	phase Phase

	unsubscribe func()

	agentReady     chan struct{}
	agentReadyOnce sync.Once

	done     chan struct{}
	doneOnce sync.Once
}

// NewController creates a Controller. It does not start anything.
func NewController(cfg Config) (*Controller, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("session: session id is required")
	}
	if cfg.OnFinalized == nil {
		return nil, errors.New("session: OnFinalized handler is required")
	}
	if cfg.Stream != nil && cfg.Registry == nil {
		return nil, errors.New("session: registry is required when a stream client is set")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultAgentTimeout
	}

	rules := cfg.Rules
	if len(rules.Greetings) == 0 && len(rules.Acknowledgments) == 0 && len(rules.Closings) == 0 {
		rules = interview.DefaultRules()
	}

	return &Controller{
		cfg:        cfg,
		agg:        transcript.NewAggregator(),
		extractor:  interview.NewExtractor(rules, cfg.MaxQuestions),
		detector:   interview.NewDetector(rules),
		phase:      PhaseIdle,
		agentReady: make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// SessionID returns the session identifier.
func (c *Controller) SessionID() string { return c.cfg.SessionID }

// ClientID returns the analysis client identifier for this session.
func (c *Controller) ClientID() string { return c.cfg.ClientID }

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Transcript returns the current merged transcript snapshot.
func (c *Controller) Transcript() types.Transcript {
	return c.agg.Snapshot()
}

// Start activates the session: it subscribes the detector to transcript
// updates, registers and starts the analysis stream, and arms the
// agent-availability timeout. Returns an error if the session is not idle or
// the registry refuses the stream registration.
func (c *Controller) Start(ctx context.Context) error {
	if !c.advance(EventStart) {
		return fmt.Errorf("session %q is %s, cannot start", c.cfg.SessionID, c.Phase())
	}

	c.unsubscribe = c.agg.Subscribe(c.onTranscriptUpdate)

	if c.cfg.Stream != nil {
		if err := c.cfg.Registry.Register(c.cfg.SessionID, c.cfg.Stream); err != nil {
			// Roll the session back to idle so a later Start can succeed once
			// the conflicting registration is released.
			c.unsubscribe()
			c.unsubscribe = nil
			c.mu.Lock()
			c.phase = PhaseIdle
			c.mu.Unlock()
			return fmt.Errorf("session: register stream: %w", err)
		}

		c.cfg.Stream.SetStateHandler(func(oldState, newState analysis.State) {
			slog.Debug("analysis stream state",
				"session_id", c.cfg.SessionID,
				"from", oldState.String(),
				"to", newState.String(),
			)
			if newState == analysis.StateFailed {
				c.notice("Unable to connect to the analysis service. The interview continues without behavioural analysis.")
			}
		})
		c.cfg.Stream.SetErrorHandler(func(message string) {
			c.notice("Analysis service reported: " + message)
		})

		if err := c.cfg.Stream.Start(ctx, c.cfg.Source); err != nil {
			// Hardware or stream startup failure is surfaced, not fatal: the
			// interview proceeds without analysis.
			slog.Warn("session: analysis stream start failed",
				"session_id", c.cfg.SessionID, "err", err)
			c.notice("Camera analysis could not start. The interview continues without it.")
			c.cfg.Registry.Release(c.cfg.SessionID)
		} else {
			c.cfg.Stream.SetCameraActive(true)
			if c.cfg.Camera != nil {
				go func() {
					if err := c.cfg.Camera.StartCamera(ctx); err != nil {
						slog.Warn("session: start-camera call failed",
							"session_id", c.cfg.SessionID, "err", err)
					}
				}()
			}
		}
	}

	c.cfg.Metrics.AddActiveSessions(ctx, 1)
	go c.watchAgentAvailability()

	slog.Info("session started",
		"session_id", c.cfg.SessionID,
		"client_id", c.cfg.ClientID,
		"agent_timeout", c.cfg.AgentTimeout,
	)
	return nil
}

// AppendTranscription records a message from the live transcription feed.
// The first remote message also marks the agent as available.
func (c *Controller) AppendTranscription(msg types.Message) {
	if msg.Origin == types.OriginRemote {
		c.AgentReady()
	}
	c.agg.Append(transcript.FeedTranscription, msg)
}

// AppendChat records a message from the text-chat feed.
func (c *Controller) AppendChat(msg types.Message) {
	if msg.Origin == types.OriginRemote {
		c.AgentReady()
	}
	c.agg.Append(transcript.FeedChat, msg)
}

// AgentReady marks the voice agent as available, disarming the
// agent-availability timeout. Idempotent.
func (c *Controller) AgentReady() {
	c.agentReadyOnce.Do(func() { close(c.agentReady) })
}

// EndInterview is the user's explicit end action. It finalizes the session
// unless another trigger got there first.
func (c *Controller) EndInterview() {
	c.finalize(TriggerManual)
}

// Teardown finalizes on component disposal or navigation away. Resource
// release is synchronous: when Teardown returns, the frame loop is
// cancelled, the connection closed, and the camera released.
func (c *Controller) Teardown() {
	c.finalize(TriggerTeardown)
}

// onTranscriptUpdate consults the termination detector against the same
// snapshot the extractor will use. Invoked synchronously from Append, so the
// detector result and the transcript it saw always correspond.
func (c *Controller) onTranscriptUpdate(snapshot types.Transcript) {
	if c.detector.ShouldTerminate(snapshot) {
		slog.Info("interview termination detected", "session_id", c.cfg.SessionID)
		c.finalize(TriggerDetected)
	}
}

// watchAgentAvailability aborts the session when the agent never becomes
// active within the configured timeout.
func (c *Controller) watchAgentAvailability() {
	timer := time.NewTimer(c.cfg.AgentTimeout)
	defer timer.Stop()

	select {
	case <-c.agentReady:
	case <-c.done:
	case <-timer.C:
		slog.Error("voice agent unavailable, aborting session",
			"session_id", c.cfg.SessionID,
			"timeout", c.cfg.AgentTimeout,
		)
		c.notice("The interviewer did not join in time. Please try again later.")
		c.finalize(TriggerAgentTimeout)
	}
}

// advance applies e to the session phase under the mutex. The check-and-set
// is synchronous, before any asynchronous work, so concurrent triggers in
// the same instant still collapse to one winner.
func (c *Controller) advance(e Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, ok := transition(c.phase, e)
	if ok {
		c.phase = next
	}
	return ok
}

func (c *Controller) notice(text string) {
	if c.cfg.OnNotice != nil {
		c.cfg.OnNotice(text)
	}
}
