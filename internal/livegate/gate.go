/*

This file contains the Live Gate: the handoff between a completed live
round's winning Prediction and the executor.Sink that actually moves the
vault. Submit is the scheduler's call site; Run is a background drain loop
that retries whatever Submit could not land on the first try, without
ever making the scheduler's tick wait on it.

*/

package livegate

import (
	"context"
	"time"

	"github.com/elys-network/lpvalidator/internal/executor"
	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/state"
	"github.com/elys-network/lpvalidator/internal/types"
)

// defaultMaxAttempts bounds the total number of submission attempts for a
// round, the first one made by Submit included, before it is marked FAILED.
const defaultMaxAttempts = 5

// Gate hands a live round's winning decisions to a Sink, idempotently by
// round ID, and retries failures in the background.
type Gate struct {
	store         *state.Store
	sink          executor.Sink
	maxAttempts   int
	retryInterval time.Duration
}

// New creates a Gate. retryInterval governs how often the background
// drain loop sweeps the retry queue; pass 0 to use a 30s default.
func New(store *state.Store, sink executor.Sink, retryInterval time.Duration) *Gate {
	if retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}
	return &Gate{store: store, sink: sink, maxAttempts: defaultMaxAttempts, retryInterval: retryInterval}
}

// Submit hands a round's winning decisions to the sink exactly once.
// Enqueuing is idempotent by round_id, so a duplicate Submit for a round
// already in the retry queue just refreshes nothing and proceeds to a
// fresh attempt. A sink failure is persisted for the drain loop and does
// not propagate: Submit never blocks the scheduler on executor latency
// beyond its own single attempt.
func (g *Gate) Submit(ctx context.Context, roundID, jobID, minerID string, decisions []types.RebalanceDecision) error {
	log := logger.GetForComponent("livegate")

	if err := g.store.EnqueueLiveExecution(ctx, state.LiveExecution{
		RoundID: roundID, JobID: jobID, MinerID: minerID, Decisions: decisions,
	}); err != nil {
		return err
	}

	err := g.sink.Submit(ctx, roundID, decisions)
	if markErr := g.store.MarkLiveExecutionAttempt(ctx, roundID, err, g.maxAttempts); markErr != nil {
		log.Error().Err(markErr).Str("round_id", roundID).Msg("failed to record live execution attempt")
	}
	if err != nil {
		log.Warn().Err(err).Str("round_id", roundID).Msg("live submission failed, queued for retry")
	}
	return nil
}

// Run drains the retry queue until ctx is cancelled. It never blocks the
// Scheduler's tick loop: callers should launch it once in its own
// goroutine at startup.
func (g *Gate) Run(ctx context.Context) {
	log := logger.GetForComponent("livegate")
	ticker := time.NewTicker(g.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := g.store.PendingLiveExecutions(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to list pending live executions")
				continue
			}
			for _, e := range pending {
				if e.Status != state.LiveExecutionRetry {
					continue
				}
				err := g.sink.Submit(ctx, e.RoundID, e.Decisions)
				if markErr := g.store.MarkLiveExecutionAttempt(ctx, e.RoundID, err, g.maxAttempts); markErr != nil {
					log.Error().Err(markErr).Str("round_id", e.RoundID).Msg("failed to record retry attempt")
					continue
				}
				if err != nil {
					log.Warn().Err(err).Str("round_id", e.RoundID).Int("attempts", e.Attempts+1).Msg("retry attempt failed")
				} else {
					log.Info().Str("round_id", e.RoundID).Msg("live submission succeeded on retry")
				}
			}
		}
	}
}
