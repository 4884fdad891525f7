// Package observe provides application-wide observability primitives for
// Prepcall: OpenTelemetry metrics and the SDK provider wiring that exposes
// them through a Prometheus /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Prepcall metrics.
const meterName = "github.com/prepcall/prepcall"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesSent counts camera frames delivered to the analysis stream.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames skipped by the fps gate or a behind
	// consumer. Use with attribute.String("reason", ...).
	FramesDropped metric.Int64Counter

	// AnalysisResults counts structured results received from the analysis
	// service.
	AnalysisResults metric.Int64Counter

	// StreamReconnects counts reconnection attempts on the analysis stream.
	StreamReconnects metric.Int64Counter

	// StreamErrors counts analysis stream failures. Use with
	// attribute.String("kind", ...).
	StreamErrors metric.Int64Counter

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// FinalizeDuration tracks the terminal sequence latency, from trigger to
	// the navigation callback. Use with attribute.String("trigger", ...).
	FinalizeDuration metric.Float64Histogram

	// EvaluationDuration tracks evaluation submission latency. Use with
	// attribute.String("status", ...).
	EvaluationDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// network round-trips up to a slow LLM-backed evaluation call.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("prepcall.analysis.frames_sent",
		metric.WithDescription("Camera frames sent to the analysis stream."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("prepcall.analysis.frames_dropped",
		metric.WithDescription("Camera frames skipped before sending."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisResults, err = m.Int64Counter("prepcall.analysis.results",
		metric.WithDescription("Structured analysis results received."),
	); err != nil {
		return nil, err
	}
	if met.StreamReconnects, err = m.Int64Counter("prepcall.analysis.reconnects",
		metric.WithDescription("Analysis stream reconnection attempts."),
	); err != nil {
		return nil, err
	}
	if met.StreamErrors, err = m.Int64Counter("prepcall.analysis.errors",
		metric.WithDescription("Analysis stream errors."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("prepcall.sessions.active",
		metric.WithDescription("Live interview sessions."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("prepcall.session.finalize.duration",
		metric.WithDescription("Latency of the terminal finalize sequence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EvaluationDuration, err = m.Float64Histogram("prepcall.evaluation.duration",
		metric.WithDescription("Latency of evaluation submissions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the process-wide Metrics instance built from the
// global OTel meter provider. Instruments on a meter provider that was not
// initialised via [InitProvider] record into a no-op meter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on invalid names; fall back to
			// an empty struct so callers can still nil-check fields.
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// AddFramesDropped records n dropped frames with the given reason, guarding
// against a nil receiver or uninitialised instrument so hot paths need no
// checks of their own.
func (m *Metrics) AddFramesDropped(ctx context.Context, n int64, reason string) {
	if m == nil || m.FramesDropped == nil {
		return
	}
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}

// AddFramesSent records n sent frames.
func (m *Metrics) AddFramesSent(ctx context.Context, n int64) {
	if m == nil || m.FramesSent == nil {
		return
	}
	m.FramesSent.Add(ctx, n)
}

// AddAnalysisResult records one received analysis result.
func (m *Metrics) AddAnalysisResult(ctx context.Context) {
	if m == nil || m.AnalysisResults == nil {
		return
	}
	m.AnalysisResults.Add(ctx, 1)
}

// AddStreamReconnect records one reconnection attempt.
func (m *Metrics) AddStreamReconnect(ctx context.Context) {
	if m == nil || m.StreamReconnects == nil {
		return
	}
	m.StreamReconnects.Add(ctx, 1)
}

// AddStreamError records one stream error of the given kind.
func (m *Metrics) AddStreamError(ctx context.Context, kind string) {
	if m == nil || m.StreamErrors == nil {
		return
	}
	m.StreamErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFinalize records one finalize sequence duration for the trigger.
func (m *Metrics) RecordFinalize(ctx context.Context, seconds float64, trigger string) {
	if m == nil || m.FinalizeDuration == nil {
		return
	}
	m.FinalizeDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordEvaluation records one evaluation submission duration with status
// "ok" or "error".
func (m *Metrics) RecordEvaluation(ctx context.Context, seconds float64, status string) {
	if m == nil || m.EvaluationDuration == nil {
		return
	}
	m.EvaluationDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

// AddActiveSessions adjusts the live session gauge by delta.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil || m.ActiveSessions == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}
