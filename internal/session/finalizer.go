package session

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prepcall/prepcall/internal/observe"
	"github.com/prepcall/prepcall/pkg/types"
)

// Finalize-sequence budgets. The sequence runs on whichever goroutine won
// the trigger race, detached from the session context: teardown must not be
// able to cancel the one submission attempt, only bound it.
const (
	evaluateBudget = 35 * time.Second
	persistBudget  = 10 * time.Second
)

// finalize runs the terminal sequence at most once per session:
//
//  1. unsubscribe from transcript updates
//  2. stop the analysis stream (cancel frame loop, close socket, release camera)
//  3. extract the final question/answer pairs
//  4. submit to the evaluation collaborator (best-effort)
//  5. cache the result locally and write it to the remote store (best-effort)
//  6. invoke the navigation callback
//
// Whichever trigger observes the Active phase first proceeds; every later
// call is a no-op. No failure along the way may prevent step 6: the user
// leaving the session matters more than the score.
func (c *Controller) finalize(trigger Trigger) {
	if !c.advance(EventEndTriggered) {
		return
	}
	started := time.Now()
	c.doneOnce.Do(func() { close(c.done) })

	// Detached from the session context: teardown must not be able to cancel
	// the finalize sequence it triggered.
	ctx, span := observe.StartSpan(context.Background(), "session.finalize")
	defer span.End()
	log := observe.Logger(ctx)

	log.Info("finalizing session",
		"session_id", c.cfg.SessionID,
		"trigger", string(trigger),
	)

	if c.unsubscribe != nil {
		c.unsubscribe()
	}

	c.stopStream(ctx)

	snapshot := c.agg.Snapshot()
	pairs := c.extractor.Extract(snapshot)

	result := c.evaluateBestEffort(ctx, snapshot, pairs)
	if result != nil {
		c.persistBestEffort(ctx, result)
	}

	// The callback fires exactly once: EventFinalized is only reachable from
	// the single goroutine that won EventEndTriggered.
	c.advance(EventFinalized)
	c.cfg.Metrics.AddActiveSessions(ctx, -1)
	c.cfg.Metrics.RecordFinalize(ctx, time.Since(started).Seconds(), string(trigger))

	log.Info("session finalized",
		"session_id", c.cfg.SessionID,
		"trigger", string(trigger),
		"pairs", len(pairs),
		"scored", result != nil,
		"duration", time.Since(started),
	)

	c.cfg.OnFinalized(result)
}

// stopStream stops the analysis client and releases its registry slot. The
// registry entry outlives the client until Stop has returned, so no new
// stream can grab the camera while tracks are still held.
func (c *Controller) stopStream(ctx context.Context) {
	if c.cfg.Stream == nil {
		return
	}

	if c.cfg.Camera != nil {
		ctx, cancel := context.WithTimeout(ctx, persistBudget)
		defer cancel()
		if err := c.cfg.Camera.StopCamera(ctx); err != nil {
			slog.Warn("session: stop-camera call failed",
				"session_id", c.cfg.SessionID, "err", err)
		}
	}

	if err := c.cfg.Stream.Stop(); err != nil {
		slog.Warn("session: analysis stream stop failed",
			"session_id", c.cfg.SessionID, "err", err)
	}
	c.cfg.Registry.Release(c.cfg.SessionID)
}

// evaluateBestEffort submits the session for scoring. A missing evaluator,
// an empty interview, or a failed call all yield nil — finalization and
// navigation proceed regardless.
func (c *Controller) evaluateBestEffort(ctx context.Context, snapshot types.Transcript, pairs []types.QAPair) *types.EvaluationResult {
	if c.cfg.Evaluator == nil || len(snapshot) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, evaluateBudget)
	defer cancel()

	started := time.Now()
	result, err := c.cfg.Evaluator.Evaluate(ctx, c.cfg.SessionID, snapshot, pairs)
	if err != nil {
		c.cfg.Metrics.RecordEvaluation(ctx, time.Since(started).Seconds(), "error")
		slog.Error("evaluation submission failed; session finalizes without a score",
			"session_id", c.cfg.SessionID, "err", err)
		return nil
	}
	c.cfg.Metrics.RecordEvaluation(ctx, time.Since(started).Seconds(), "ok")
	return result
}

// persistBestEffort writes the result to the local cache and the remote
// store concurrently. The local write completes before navigation (the
// results view reads it synchronously); either write failing is logged and
// swallowed.
func (c *Controller) persistBestEffort(ctx context.Context, result *types.EvaluationResult) {
	ctx, cancel := context.WithTimeout(ctx, persistBudget)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Cache != nil {
		g.Go(func() error {
			if err := c.cfg.Cache.Put(result); err != nil {
				slog.Warn("session: local result cache write failed",
					"session_id", c.cfg.SessionID, "err", err)
			}
			return nil
		})
	}
	if c.cfg.Remote != nil {
		g.Go(func() error {
			if err := c.cfg.Remote.Put(gctx, result); err != nil {
				slog.Warn("session: remote result write failed",
					"session_id", c.cfg.SessionID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
