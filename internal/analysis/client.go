// Package analysis implements the client side of the behavioural analysis
// stream: a persistent websocket connection that carries outbound camera
// frames and inbound structured analysis results.
//
// The client owns a connect/retry/keep-alive state machine. Connection drops
// are retried a fixed number of times at a fixed interval; a connect attempt
// that does not open within the dial timeout follows the same retry path.
// The stream is an accessory to the interview — a Failed stream surfaces an
// "unable to connect" state but never ends the session.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/prepcall/prepcall/internal/capture"
	"github.com/prepcall/prepcall/internal/observe"
	"github.com/prepcall/prepcall/pkg/types"
)

// State is the connection state of a [Client].
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateRetrying
	StateClosed
	StateFailed
)

// String returns the uppercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateRetrying:
		return "RETRYING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Default tuning values for the stream client.
const (
	DefaultDialTimeout   = 5 * time.Second
	DefaultRetryInterval = 2 * time.Second
	DefaultMaxRetries    = 3
	DefaultPingInterval  = 15 * time.Second
)

// ResultHandler receives each structured analysis result as it arrives.
type ResultHandler func(result types.AnalysisResult)

// StateHandler is notified of connection state transitions.
type StateHandler func(oldState, newState State)

// ErrorHandler receives user-visible error text reported by the remote
// service. An error message does not close the connection — the service may
// recover.
type ErrorHandler func(message string)

// Config holds the tuning parameters for a [Client].
type Config struct {
	// URL is the websocket endpoint without the client id segment,
	// e.g. "ws://host/face-detection/ws".
	URL string

	// ClientID is the opaque per-session identifier appended to URL and
	// tagged on every outbound frame.
	ClientID string

	// DialTimeout bounds a single connect attempt. Default 5s.
	DialTimeout time.Duration

	// RetryInterval is the fixed delay between reconnect attempts. The
	// interval is deliberately not exponential: it balances recovery speed
	// against hammering a degraded service. Default 2s.
	RetryInterval time.Duration

	// MaxRetries is the number of reconnect attempts after a failure before
	// the client gives up and enters Failed. Default 3.
	MaxRetries int

	// PingInterval is the keep-alive cadence while Open. Default 15s.
	PingInterval time.Duration

	// TargetFPS caps the outbound frame rate. Default [DefaultTargetFPS].
	TargetFPS int

	// Encoder converts captured frames to the wire format. Nil uses a
	// zero-value [capture.Encoder].
	Encoder *capture.Encoder

	// Metrics records stream instrumentation. Nil disables recording.
	Metrics *observe.Metrics
}

// DefaultConfig returns a Config with all tuning values at their defaults.
func DefaultConfig(url, clientID string) *Config {
	return &Config{
		URL:           url,
		ClientID:      clientID,
		DialTimeout:   DefaultDialTimeout,
		RetryInterval: DefaultRetryInterval,
		MaxRetries:    DefaultMaxRetries,
		PingInterval:  DefaultPingInterval,
		TargetFPS:     DefaultTargetFPS,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.DialTimeout <= 0 {
		out.DialTimeout = DefaultDialTimeout
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = DefaultRetryInterval
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.PingInterval <= 0 {
		out.PingInterval = DefaultPingInterval
	}
	if out.TargetFPS <= 0 {
		out.TargetFPS = DefaultTargetFPS
	}
	if out.Encoder == nil {
		out.Encoder = &capture.Encoder{}
	}
	return &out
}

// Client is the analysis stream client. One instance serves one session and
// exclusively owns its [capture.Source] between Start and Stop. All exported
// methods are safe for concurrent use.
type Client struct {
	cfg  *Config
	gate *FrameGate

	state   atomic.Int32
	retries atomic.Int32
	frameTS atomic.Int64

	mu     sync.Mutex // guards conn
	conn   *websocket.Conn
	source capture.Source

	writeMu sync.Mutex

	cameraOn atomic.Bool

	resultMu    sync.RWMutex
	lastResult  types.AnalysisResult
	resultSeen  bool
	lastError   string

	onResult ResultHandler
	onState  StateHandler
	onError  ErrorHandler

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient creates a Client for the given config. The client does not
// connect until [Client.Start].
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("analysis: config with URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("analysis: client id is required")
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:  cfg,
		gate: NewFrameGate(cfg.TargetFPS),
		done: make(chan struct{}),
	}
	c.state.Store(int32(StateIdle))
	return c, nil
}

// SetResultHandler registers the analysis result callback. Call before Start.
func (c *Client) SetResultHandler(h ResultHandler) { c.onResult = h }

// SetStateHandler registers the state transition callback. Call before Start.
func (c *Client) SetStateHandler(h StateHandler) { c.onState = h }

// SetErrorHandler registers the remote error callback. Call before Start.
func (c *Client) SetErrorHandler(h ErrorHandler) { c.onError = h }

// Start begins connecting and takes ownership of source. It returns
// immediately; connection progress is reported through the state handler.
// Returns an error if the client has already been started or stopped.
func (c *Client) Start(ctx context.Context, source capture.Source) error {
	if !c.compareAndSwapState(StateIdle, StateConnecting) {
		return fmt.Errorf("analysis: client is %s, not idle", c.State())
	}

	c.mu.Lock()
	c.source = source
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// SetCameraActive toggles the external "camera should be active" signal.
// While false, frames are read from the source and discarded without being
// sent.
func (c *Client) SetCameraActive(active bool) {
	c.cameraOn.Store(active)
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// LastResult returns the most recent analysis result (last-write-wins) and
// whether any result has been received.
func (c *Client) LastResult() (types.AnalysisResult, bool) {
	c.resultMu.RLock()
	defer c.resultMu.RUnlock()
	return c.lastResult, c.resultSeen
}

// LastError returns the most recent user-visible error text reported by the
// remote service, or the empty string.
func (c *Client) LastError() string {
	c.resultMu.RLock()
	defer c.resultMu.RUnlock()
	return c.lastError
}

// Stop terminates the stream: the frame loop is cancelled, the capture
// source is released, the connection is closed, and retry counters reset.
// Stop is idempotent — calling it on an already-closed client is a no-op.
// It blocks until the background loops have exited, so a caller observing
// Stop's return knows the camera hardware has been released.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	source := c.source
	c.source = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}
	if source != nil {
		_ = source.Close()
	}

	c.wg.Wait()
	c.retries.Store(0)
	c.setState(StateClosed)
	return nil
}

// endpoint returns the full websocket URL including the client id segment.
func (c *Client) endpoint() string {
	return c.cfg.URL + "/" + c.cfg.ClientID
}

// run drives the connect/retry loop until the client is stopped or retries
// are exhausted.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if c.stopping() {
				return
			}
			c.cfg.Metrics.AddStreamError(ctx, "dial")
			if !c.scheduleRetry(ctx, err) {
				return
			}
			continue
		}

		// Connected: reset the retry budget and serve until the connection
		// drops or the client stops.
		c.retries.Store(0)
		c.setState(StateOpen)
		err = c.serve(ctx, conn)
		if c.stopping() {
			return
		}
		c.cfg.Metrics.AddStreamError(ctx, "connection_lost")
		slog.Warn("analysis stream lost", "client_id", c.cfg.ClientID, "err", err)
		if !c.scheduleRetry(ctx, err) {
			return
		}
	}
}

// dial performs one bounded connect attempt.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, c.endpoint(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("analysis: dial %s: %w", c.endpoint(), err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// scheduleRetry burns one retry and waits out the fixed interval. It returns
// false when the retry budget is exhausted (the client enters Failed) or the
// client is stopping.
func (c *Client) scheduleRetry(ctx context.Context, cause error) bool {
	retries := c.retries.Add(1)
	if retries > int32(c.cfg.MaxRetries) {
		slog.Error("analysis stream failed, giving up",
			"client_id", c.cfg.ClientID,
			"max_retries", c.cfg.MaxRetries,
			"err", cause,
		)
		c.setState(StateFailed)
		return false
	}

	c.cfg.Metrics.AddStreamReconnect(ctx)
	c.setState(StateRetrying)
	slog.Info("analysis stream retrying",
		"client_id", c.cfg.ClientID,
		"attempt", retries,
		"max_retries", c.cfg.MaxRetries,
		"interval", c.cfg.RetryInterval,
	)

	select {
	case <-time.After(c.cfg.RetryInterval):
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// serve runs the read, ping, and frame loops for one connection. It returns
// when the connection drops or the client stops.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.done:
			cancel()
		case <-connCtx.Done():
		}
	}()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		c.pingLoop(connCtx, conn)
	}()
	go func() {
		defer loops.Done()
		c.frameLoop(connCtx, conn)
	}()

	err := c.readLoop(connCtx, conn)
	cancel()
	_ = conn.CloseNow()
	loops.Wait()
	return err
}

// readLoop processes inbound messages until the connection fails.
// Unparseable payloads are logged and dropped, never propagated.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("analysis: dropping unparseable message", "err", err)
			continue
		}

		switch env.Type {
		case typeAnalysisResult:
			var payload analysisPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				slog.Debug("analysis: dropping malformed result", "err", err)
				continue
			}
			c.resultMu.Lock()
			c.lastResult = payload.Analysis
			c.resultSeen = true
			c.lastError = ""
			c.resultMu.Unlock()
			c.cfg.Metrics.AddAnalysisResult(ctx)
			if c.onResult != nil {
				c.onResult(payload.Analysis)
			}
		case typeError:
			// The remote service may recover; surface the error without
			// closing the connection.
			c.resultMu.Lock()
			c.lastError = env.Message
			c.resultMu.Unlock()
			c.cfg.Metrics.AddStreamError(ctx, "remote")
			if c.onError != nil {
				c.onError(env.Message)
			}
		case typePong:
			// Keep-alive acknowledged.
		default:
			slog.Debug("analysis: ignoring unknown message type", "type", env.Type)
		}
	}
}

// pingLoop sends a keep-alive on a fixed interval, independent of frame
// sends, to detect silently-dead connections.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(ctx, conn, pingMessage{Type: typePing}); err != nil {
				// The read loop will observe the dead connection and drive
				// the retry path.
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// frameLoop encodes and sends camera frames while the external camera signal
// is active, at most TargetFPS per second. A camera delivering faster than
// the target has the excess discarded; one delivering slower under-fills,
// which is accepted degradation rather than a failure.
func (c *Client) frameLoop(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()
	if source == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source.Frames():
			if !ok {
				// Camera gone: analysis stops, the interview proceeds.
				slog.Warn("analysis: capture source closed", "client_id", c.cfg.ClientID)
				return
			}
			if !c.cameraOn.Load() {
				continue
			}
			if !c.gate.Admit(frame.CapturedAt) {
				c.cfg.Metrics.AddFramesDropped(ctx, 1, "rate_limited")
				continue
			}

			dataURL, err := c.cfg.Encoder.EncodeDataURL(frame.Image)
			if err != nil {
				slog.Debug("analysis: frame encode failed", "err", err)
				c.cfg.Metrics.AddFramesDropped(ctx, 1, "encode")
				continue
			}

			msg := frameMessage{
				Type: typeVideoFrame,
				Data: frameData{
					Image:     dataURL,
					Timestamp: c.nextFrameTimestamp(),
					ClientID:  c.cfg.ClientID,
				},
			}
			if err := c.send(ctx, conn, msg); err != nil {
				_ = conn.CloseNow()
				return
			}
			c.cfg.Metrics.AddFramesSent(ctx, 1)
		}
	}
}

// nextFrameTimestamp returns a strictly increasing Unix-millisecond value.
// Wall-clock reads can repeat within a millisecond; the service requires
// frame timestamps to be monotonic.
func (c *Client) nextFrameTimestamp() int64 {
	now := time.Now().UnixMilli()
	for {
		last := c.frameTS.Load()
		if now <= last {
			now = last + 1
		}
		if c.frameTS.CompareAndSwap(last, now) {
			return now
		}
	}
}

// send marshals msg and writes it as a single text message. A dedicated
// write mutex serialises the ping and frame loops on one connection.
func (c *Client) send(ctx context.Context, conn *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("analysis: marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, data)
}

// stopping reports whether Stop has been requested.
func (c *Client) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) setState(newState State) {
	oldState := State(c.state.Swap(int32(newState)))
	if oldState != newState && c.onState != nil {
		c.onState(oldState, newState)
	}
}

func (c *Client) compareAndSwapState(oldState, newState State) bool {
	swapped := c.state.CompareAndSwap(int32(oldState), int32(newState))
	if swapped && c.onState != nil {
		c.onState(oldState, newState)
	}
	return swapped
}
