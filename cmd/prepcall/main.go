// Command prepcall runs the practice-interview session coordinator.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prepcall/prepcall/internal/analysis"
	"github.com/prepcall/prepcall/internal/capture"
	"github.com/prepcall/prepcall/internal/capture/mock"
	"github.com/prepcall/prepcall/internal/config"
	"github.com/prepcall/prepcall/internal/evaluate"
	"github.com/prepcall/prepcall/internal/health"
	"github.com/prepcall/prepcall/internal/interview"
	"github.com/prepcall/prepcall/internal/observe"
	"github.com/prepcall/prepcall/internal/session"
	"github.com/prepcall/prepcall/internal/store"
	"github.com/prepcall/prepcall/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	demo := flag.Bool("demo", false, "run an interactive demo session fed from stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "prepcall: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "prepcall: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("prepcall starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "prepcall",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Storage ───────────────────────────────────────────────────────────────
	var cache *store.Cache
	if cfg.Storage.CacheDir != "" {
		cache, err = store.NewCache(cfg.Storage.CacheDir)
		if err != nil {
			slog.Error("failed to open result cache", "dir", cfg.Storage.CacheDir, "err", err)
			return 1
		}
	}

	var remote *store.PostgresStore
	if cfg.Storage.PostgresDSN != "" {
		remote, err = store.NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			// The remote store is best-effort end to end; a missing database
			// must not keep interviews from running.
			slog.Warn("remote result store unavailable, continuing without it", "err", err)
		} else {
			defer remote.Close()
		}
	}

	// ── Evaluation service ────────────────────────────────────────────────────
	var evaluator *evaluate.Client
	if cfg.Evaluation.BaseURL != "" {
		var opts []evaluate.Option
		if cfg.Evaluation.Timeout > 0 {
			opts = append(opts, evaluate.WithHTTPClient(&http.Client{Timeout: cfg.Evaluation.Timeout.Std()}))
		}
		evaluator, err = evaluate.NewClient(cfg.Evaluation.BaseURL, opts...)
		if err != nil {
			slog.Error("invalid evaluation config", "err", err)
			return 1
		}
	}

	// ── HTTP server: metrics + health ─────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	var checkers []health.Checker
	if remote != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: remote.Ping})
	}
	if cfg.Analysis.RESTBaseURL != "" {
		checkers = append(checkers, health.Checker{Name: "analysis", Check: probeURL(cfg.Analysis.RESTBaseURL)})
	}
	health.New(checkers...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	// ── Demo session ──────────────────────────────────────────────────────────
	if *demo {
		if err := runDemoSession(ctx, cfg, evaluator, cache, remote, metrics); err != nil {
			slog.Error("demo session error", "err", err)
		}
		stop()
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// runDemoSession drives one interview session from stdin. Lines prefixed with
// "agent:" are treated as interviewer utterances, everything else as the
// candidate; "/end" triggers the manual end action.
func runDemoSession(ctx context.Context, cfg *config.Config, evaluator *evaluate.Client, cache *store.Cache, remote *store.PostgresStore, metrics *observe.Metrics) error {
	sessionID := fmt.Sprintf("demo-%d", time.Now().Unix())
	registry := session.NewRegistry()

	sessionCfg := session.Config{
		SessionID:    sessionID,
		ClientID:     sessionID,
		MaxQuestions: cfg.Interview.MaxQuestions,
		Registry:     registry,
		Metrics:      metrics,
		AgentTimeout: cfg.Interview.AgentTimeout.Std(),
		OnNotice: func(notice string) {
			fmt.Println("[notice] " + notice)
		},
	}
	if cfg.Interview.FuzzyThreshold > 0 {
		rules := interview.DefaultRules()
		rules.FuzzyThreshold = cfg.Interview.FuzzyThreshold
		sessionCfg.Rules = rules
	}
	if evaluator != nil {
		sessionCfg.Evaluator = evaluator
	}
	if cache != nil {
		sessionCfg.Cache = cache
	}
	if remote != nil {
		sessionCfg.Remote = remote
	}

	var source capture.Source
	if cfg.Analysis.WebsocketURL != "" {
		streamCfg := analysis.DefaultConfig(cfg.Analysis.WebsocketURL, "")
		streamCfg.DialTimeout = cfg.Analysis.DialTimeout.Std()
		streamCfg.RetryInterval = cfg.Analysis.RetryInterval.Std()
		streamCfg.MaxRetries = cfg.Analysis.MaxRetries
		streamCfg.PingInterval = cfg.Analysis.PingInterval.Std()
		streamCfg.TargetFPS = cfg.Analysis.TargetFPS
		streamCfg.Encoder = &capture.Encoder{
			MaxWidth: cfg.Capture.MaxWidth,
			Quality:  cfg.Capture.JPEGQuality,
		}
		streamCfg.Metrics = metrics

		// No real camera in the demo; a synthetic source exercises the full
		// encode-and-send path.
		fps := cfg.Analysis.TargetFPS
		if fps <= 0 {
			fps = analysis.DefaultTargetFPS
		}
		source = mock.NewSource(640, 480, time.Second/time.Duration(fps))

		streamCfg.ClientID = sessionID
		stream, err := analysis.NewClient(streamCfg)
		if err != nil {
			return fmt.Errorf("build analysis client: %w", err)
		}
		stream.SetResultHandler(func(result types.AnalysisResult) {
			slog.Debug("analysis result",
				"face_detected", result.FaceDetected,
				"engagement", result.EngagementLevel,
			)
		})
		sessionCfg.Stream = stream
		sessionCfg.Source = source
		if cfg.Analysis.RESTBaseURL != "" {
			sessionCfg.Camera = &analysis.CameraControl{
				BaseURL:  cfg.Analysis.RESTBaseURL,
				ClientID: sessionID,
			}
		}
	}

	finished := make(chan struct{})
	sessionCfg.OnFinalized = func(result *types.EvaluationResult) {
		if result != nil {
			fmt.Printf("\nSession %s scored %d/%d (%.0f%%)\n%s\n",
				result.SessionID, result.TotalScore, result.MaxScore,
				result.Percentage, result.OverallAnalysis)
		} else {
			fmt.Printf("\nSession %s ended without a score\n", sessionID)
		}
		close(finished)
	}

	ctrl, err := session.NewController(sessionCfg)
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer ctrl.Teardown()

	fmt.Println(`Demo session started. Prefix interviewer lines with "agent:", type /end to finish.`)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-finished:
			return nil
		case line, ok := <-lines:
			if !ok {
				ctrl.EndInterview()
				<-finished
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/end":
				ctrl.EndInterview()
			case strings.HasPrefix(line, "agent:"):
				seq++
				ctrl.AppendTranscription(types.Message{
					ID:          fmt.Sprintf("%s-%d", sessionID, seq),
					TimestampMs: time.Now().UnixMilli(),
					Origin:      types.OriginRemote,
					Text:        strings.TrimSpace(strings.TrimPrefix(line, "agent:")),
				})
			default:
				seq++
				ctrl.AppendTranscription(types.Message{
					ID:          fmt.Sprintf("%s-%d", sessionID, seq),
					TimestampMs: time.Now().UnixMilli(),
					Origin:      types.OriginLocal,
					Text:        line,
				})
			}
		}
	}
}

// probeURL returns a readiness checker that requires any HTTP response from
// base. The analysis service is reachable even when it answers 404 at the
// root; only transport failures count against readiness.
func probeURL(base string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
