package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepcall/prepcall/pkg/types"
)

// resultsSchema creates the interview_results table. Idempotent.
const resultsSchema = `
CREATE TABLE IF NOT EXISTS interview_results (
    session_id            TEXT PRIMARY KEY,
    total_score           INTEGER NOT NULL,
    max_score             INTEGER NOT NULL,
    percentage            DOUBLE PRECISION NOT NULL,
    questions_evaluated   INTEGER NOT NULL,
    overall_analysis      TEXT NOT NULL DEFAULT '',
    detailed_feedback     JSONB,
    strengths             JSONB,
    areas_for_improvement JSONB,
    recommendations       JSONB,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is the durable result store. Writes are best-effort from the
// session's point of view: the caller logs failures and proceeds.
//
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the results table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres dsn must not be empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, resultsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity; used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Put upserts result under its session id.
func (s *PostgresStore) Put(ctx context.Context, result *types.EvaluationResult) error {
	if result == nil || result.SessionID == "" {
		return errors.New("store: result with session id is required")
	}

	feedback, err := json.Marshal(result.DetailedFeedback)
	if err != nil {
		return fmt.Errorf("store: marshal feedback: %w", err)
	}
	strengths, err := json.Marshal(result.Strengths)
	if err != nil {
		return fmt.Errorf("store: marshal strengths: %w", err)
	}
	improvements, err := json.Marshal(result.AreasForImprovement)
	if err != nil {
		return fmt.Errorf("store: marshal improvements: %w", err)
	}
	recommendations, err := json.Marshal(result.Recommendations)
	if err != nil {
		return fmt.Errorf("store: marshal recommendations: %w", err)
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO interview_results
		    (session_id, total_score, max_score, percentage, questions_evaluated,
		     overall_analysis, detailed_feedback, strengths, areas_for_improvement,
		     recommendations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (session_id) DO UPDATE SET
		    total_score           = EXCLUDED.total_score,
		    max_score             = EXCLUDED.max_score,
		    percentage            = EXCLUDED.percentage,
		    questions_evaluated   = EXCLUDED.questions_evaluated,
		    overall_analysis      = EXCLUDED.overall_analysis,
		    detailed_feedback     = EXCLUDED.detailed_feedback,
		    strengths             = EXCLUDED.strengths,
		    areas_for_improvement = EXCLUDED.areas_for_improvement,
		    recommendations       = EXCLUDED.recommendations,
		    updated_at            = now()`

	_, err = s.pool.Exec(ctx, q,
		result.SessionID,
		result.TotalScore,
		result.MaxScore,
		result.Percentage,
		result.QuestionsEvaluated,
		result.OverallAnalysis,
		feedback,
		strengths,
		improvements,
		recommendations,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert result: %w", err)
	}
	return nil
}

// Get returns the stored result for sessionID, or (nil, nil) when absent.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*types.EvaluationResult, error) {
	const q = `
		SELECT session_id, total_score, max_score, percentage, questions_evaluated,
		       overall_analysis, detailed_feedback, strengths, areas_for_improvement,
		       recommendations, created_at
		FROM   interview_results
		WHERE  session_id = $1`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: query result: %w", err)
	}

	result, err := pgx.CollectOneRow(rows, scanResult)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan result: %w", err)
	}
	return &result, nil
}

// History returns stored results ordered newest first, up to limit
// (0 means no limit).
func (s *PostgresStore) History(ctx context.Context, limit int) ([]types.EvaluationResult, error) {
	q := `
		SELECT session_id, total_score, max_score, percentage, questions_evaluated,
		       overall_analysis, detailed_feedback, strengths, areas_for_improvement,
		       recommendations, created_at
		FROM   interview_results
		ORDER  BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}

	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("store: scan history: %w", err)
	}
	return results, nil
}

// scanResult scans one interview_results row.
func scanResult(row pgx.CollectableRow) (types.EvaluationResult, error) {
	var (
		r               types.EvaluationResult
		feedback        []byte
		strengths       []byte
		improvements    []byte
		recommendations []byte
	)
	if err := row.Scan(
		&r.SessionID,
		&r.TotalScore,
		&r.MaxScore,
		&r.Percentage,
		&r.QuestionsEvaluated,
		&r.OverallAnalysis,
		&feedback,
		&strengths,
		&improvements,
		&recommendations,
		&r.CreatedAt,
	); err != nil {
		return r, err
	}

	for _, pair := range []struct {
		data []byte
		dst  any
	}{
		{feedback, &r.DetailedFeedback},
		{strengths, &r.Strengths},
		{improvements, &r.AreasForImprovement},
		{recommendations, &r.Recommendations},
	} {
		if len(pair.data) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.data, pair.dst); err != nil {
			return r, err
		}
	}
	return r, nil
}
