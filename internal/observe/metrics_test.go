package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics_InstrumentsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m.AddFramesSent(ctx, 3)
	m.AddFramesDropped(ctx, 1, "rate_limited")
	m.AddAnalysisResult(ctx)
	m.AddStreamReconnect(ctx)
	m.AddStreamError(ctx, "dial")
	m.AddActiveSessions(ctx, 1)
	m.RecordFinalize(ctx, 0.42, "manual")
	m.RecordEvaluation(ctx, 2.5, "ok")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	if len(rm.ScopeMetrics) != 1 {
		t.Fatalf("scopes = %d, want 1", len(rm.ScopeMetrics))
	}

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics[0].Metrics {
		names[sm.Name] = true
	}
	for _, want := range []string{
		"prepcall.analysis.frames_sent",
		"prepcall.analysis.frames_dropped",
		"prepcall.analysis.results",
		"prepcall.analysis.reconnects",
		"prepcall.analysis.errors",
		"prepcall.sessions.active",
		"prepcall.session.finalize.duration",
		"prepcall.evaluation.duration",
	} {
		if !names[want] {
			t.Errorf("metric %q not collected", want)
		}
	}
}

// Hot paths call through a possibly-nil Metrics; every helper must tolerate
// a nil receiver.
func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	ctx := context.Background()
	var m *Metrics

	m.AddFramesSent(ctx, 1)
	m.AddFramesDropped(ctx, 1, "x")
	m.AddAnalysisResult(ctx)
	m.AddStreamReconnect(ctx)
	m.AddStreamError(ctx, "x")
	m.AddActiveSessions(ctx, 1)
	m.RecordFinalize(ctx, 1, "x")
	m.RecordEvaluation(ctx, 1, "x")
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
