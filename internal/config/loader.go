package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Analysis.WebsocketURL == "" {
		slog.Warn("analysis.websocket_url is empty; sessions will run without behavioural analysis")
	}
	if cfg.Analysis.WebsocketURL != "" && cfg.Analysis.RESTBaseURL == "" {
		slog.Warn("analysis.rest_base_url is empty; camera start/stop calls will be skipped")
	}
	if cfg.Analysis.TargetFPS < 0 {
		errs = append(errs, fmt.Errorf("analysis.target_fps %d must not be negative", cfg.Analysis.TargetFPS))
	}
	if cfg.Analysis.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_retries %d must not be negative", cfg.Analysis.MaxRetries))
	}

	if cfg.Evaluation.BaseURL == "" {
		slog.Warn("evaluation.base_url is empty; sessions will finalize without a score")
	}

	if cfg.Interview.MaxQuestions < 0 {
		errs = append(errs, fmt.Errorf("interview.max_questions %d must not be negative", cfg.Interview.MaxQuestions))
	}
	if cfg.Interview.FuzzyThreshold < 0 || cfg.Interview.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("interview.fuzzy_threshold %.2f is out of range [0, 1]", cfg.Interview.FuzzyThreshold))
	}

	if cfg.Capture.JPEGQuality < 0 || cfg.Capture.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("capture.jpeg_quality %d is out of range [0, 100]", cfg.Capture.JPEGQuality))
	}
	if cfg.Capture.MaxWidth < 0 {
		errs = append(errs, fmt.Errorf("capture.max_width %d must not be negative", cfg.Capture.MaxWidth))
	}

	if cfg.Storage.CacheDir == "" && cfg.Storage.PostgresDSN == "" {
		slog.Warn("no storage configured; evaluation results will not be persisted")
	}

	return errors.Join(errs...)
}
