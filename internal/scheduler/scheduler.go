/*

This file contains the Jobs Scheduler: one independent tick loop per
active Job, each loop driving the Round Executor the way the teacher's
AVM.RunLoop drove its own cycle — a ticker, a cycle body, a context check
on every iteration — generalized to run an eval round every tick and,
when the prior tick's winner is still eligible, a live round alongside
it.

*/

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/lpvalidator/internal/archive"
	"github.com/elys-network/lpvalidator/internal/config"
	"github.com/elys-network/lpvalidator/internal/events"
	"github.com/elys-network/lpvalidator/internal/livegate"
	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/round"
	"github.com/elys-network/lpvalidator/internal/state"
	"github.com/elys-network/lpvalidator/internal/transport"
	"github.com/elys-network/lpvalidator/internal/types"
)

// fallbackBlocksPerCheckpoint sizes a tick's block range when the Events
// Source cannot report a chain head (e.g. a Source without HeadBlock): the
// range then ends this many blocks past its start. Ten blocks is an
// arbitrary default; a source wired with HeadBlock makes this irrelevant.
const fallbackBlocksPerCheckpoint = 10

// chainHead is an optional capability an events.Source may implement to
// let the scheduler size a tick's block range off the real chain head
// instead of a fixed fallback span.
type chainHead interface {
	HeadBlock(ctx context.Context, pool string) (uint64, error)
}

// Broadcaster receives a JSON-encoded round-lifecycle event whenever the
// scheduler archives a round. The dashboard's Hub satisfies this without
// the scheduler importing the web package.
type Broadcaster interface {
	Broadcast(event []byte)
}

// Scheduler drives every active Job's round loop.
type Scheduler struct {
	store     *state.Store
	source    events.Source
	transport transport.Transport
	gate      *livegate.Gate
	notifier  Broadcaster
	archiver  *archive.Sink

	minerIDs      []string
	dryRun        bool
	minerTimeout  time.Duration
	shutdownGrace time.Duration

	log zerolog.Logger
}

// New creates a Scheduler. directory is the static miner ID -> endpoint
// map the transport was constructed against; its keys are the miner set
// every round queries. notifier and archiver may both be nil: a nil
// notifier broadcasts nothing, and a nil *archive.Sink mirrors nothing
// (it is nil-receiver safe on every method).
func New(store *state.Store, source events.Source, t transport.Transport, gate *livegate.Gate, notifier Broadcaster, archiver *archive.Sink, directory map[string]string, minerTimeout time.Duration, dryRun bool) *Scheduler {
	minerIDs := make([]string, 0, len(directory))
	for id := range directory {
		minerIDs = append(minerIDs, id)
	}
	sort.Strings(minerIDs)

	return &Scheduler{
		store:         store,
		source:        source,
		transport:     t,
		gate:          gate,
		notifier:      notifier,
		archiver:      archiver,
		minerIDs:      minerIDs,
		dryRun:        dryRun,
		minerTimeout:  minerTimeout,
		shutdownGrace: minerTimeout,
		log:           logger.GetForComponent("scheduler"),
	}
}

// notify broadcasts a round archival event, swallowing encode errors and
// doing nothing when no notifier is wired.
func (s *Scheduler) notify(r types.Round, result round.Result) {
	if s.notifier == nil {
		return
	}
	event, err := json.Marshal(map[string]interface{}{
		"round_id":   r.RoundID,
		"job_id":     r.JobID,
		"round_type": r.RoundType,
		"start_block": r.StartBlock,
		"end_block":   r.EndBlock,
		"aborted":     result.Aborted,
		"predictions": result.Predictions,
		"finished_at": r.FinishedAt,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode round event")
		return
	}
	s.notifier.Broadcast(event)
}

// Run spawns one goroutine per active Job and blocks until ctx is
// cancelled and every job has drained. A daily cron sweep keeps the
// eligibility cache warm off the scheduler's hot path.
func (s *Scheduler) Run(ctx context.Context) error {
	jobs, err := s.store.ListActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list active jobs: %w", err)
	}
	s.log.Info().Int("jobs", len(jobs)).Int("miners", len(s.minerIDs)).Msg("starting scheduler")

	// runCtx outlives ctx by shutdownGrace, giving in-flight rounds a
	// chance to finish naturally before they are force-cancelled.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		<-ctx.Done()
		s.log.Info().Dur("grace", s.shutdownGrace).Msg("shutdown signal received, draining in-flight rounds")
		select {
		case <-time.After(s.shutdownGrace):
			s.log.Warn().Msg("grace period elapsed, cancelling in-flight rounds")
		case <-runCtx.Done():
		}
		cancelRun()
	}()

	c := cron.New()
	if _, err := c.AddFunc("5 0 * * *", func() {
		if err := s.store.RollupParticipation(context.Background(), time.Now()); err != nil {
			s.log.Error().Err(err).Msg("participation rollup failed")
		}
	}); err != nil {
		return fmt.Errorf("scheduler: schedule rollup: %w", err)
	}
	c.Start()
	defer c.Stop()

	g, _ := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return s.runJob(ctx, runCtx, job)
		})
	}
	return g.Wait()
}

// runJob is one Job's independent tick loop. It never returns a non-nil
// error for an ordinary round failure — those are logged and retried on
// the next tick — so one job's trouble never cancels its siblings.
func (s *Scheduler) runJob(ctx, runCtx context.Context, job types.Job) error {
	log := s.log.With().Str("job_id", job.JobID).Logger()

	startBlock := s.resolveHead(runCtx, job.PairAddress, 0)
	var lastWinner string

	ticker := time.NewTicker(job.RoundDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("job loop stopped")
			return nil
		case <-ticker.C:
			winner, nextStart, err := s.runTick(runCtx, job, startBlock, lastWinner)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					log.Warn().Err(err).Msg("round cancelled by shutdown, discarding partial results")
					return nil
				}
				log.Error().Err(err).Msg("round tick failed, retrying next tick")
				continue
			}
			lastWinner = winner
			startBlock = nextStart
		}
	}
}

// runTick runs one Job's eval round and, when eligible, its live round
// concurrently, archives both, and returns the eval round's winner (for
// the next tick's eligibility check) and the block range's new high
// water mark.
func (s *Scheduler) runTick(ctx context.Context, job types.Job, startBlock uint64, lastWinner string) (winner string, nextStart uint64, err error) {
	endBlock := s.resolveHead(ctx, job.PairAddress, startBlock)
	if endBlock <= startBlock {
		return lastWinner, startBlock, nil
	}

	eligible := false
	if lastWinner != "" {
		cached, cerr := s.store.CachedEligible(ctx, job.JobID)
		if cerr != nil {
			s.log.Warn().Err(cerr).Str("job_id", job.JobID).Msg("eligibility lookup failed, skipping live round this tick")
		} else {
			for _, m := range cached {
				if m == lastWinner {
					eligible = true
					break
				}
			}
		}
	}

	exec := round.New(job.PairAddress, s.source, s.transport)

	var evalRound types.Round
	var evalResult *round.Result
	var liveRound types.Round
	var liveResult *round.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		evalRound, evalResult, err = s.runRound(gctx, exec, job, types.RoundEval, s.minerIDs, startBlock, endBlock)
		return err
	})
	if eligible {
		g.Go(func() error {
			var err error
			liveRound, liveResult, err = s.runRound(gctx, exec, job, types.RoundLive, []string{lastWinner}, startBlock, endBlock)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", startBlock, err
	}

	winner, err = s.processEvalResult(ctx, evalRound, *evalResult)
	if err != nil {
		return "", endBlock, err
	}

	if eligible && liveResult != nil {
		if err := s.processLiveResult(ctx, liveRound, *liveResult); err != nil {
			s.log.Error().Err(err).Str("job_id", job.JobID).Str("round_id", liveRound.RoundID).Msg("live round post-processing failed")
		}
	}

	return winner, endBlock, nil
}

// runRound begins and executes a single Round, returning its populated
// Round record (for archival) and the Round Executor's result.
func (s *Scheduler) runRound(ctx context.Context, exec *round.Executor, job types.Job, rt types.RoundType, minerIDs []string, startBlock, endBlock uint64) (types.Round, *round.Result, error) {
	r := types.Round{
		RoundID:     uuid.New().String(),
		JobID:       job.JobID,
		RoundType:   rt,
		StartBlock:  startBlock,
		EndBlock:    endBlock,
		StartedAt:   time.Now(),
		Constraints: config.DefaultConstraints,
	}
	if err := s.store.BeginRound(ctx, r); err != nil {
		return r, nil, fmt.Errorf("scheduler: begin round %q: %w", r.RoundID, err)
	}

	softDeadline := time.Duration(float64(job.RoundDuration) * 1.25)
	roundCtx, cancel := context.WithTimeout(ctx, softDeadline)
	defer cancel()

	result, err := exec.Run(roundCtx, round.RunInput{
		Round:              r,
		MinerIDs:           minerIDs,
		MinerTimeout:       s.minerTimeout,
		CheckpointInterval: job.CheckpointInterval,
	})
	if err != nil {
		return r, nil, fmt.Errorf("scheduler: run round %q: %w", r.RoundID, err)
	}
	r.FinishedAt = time.Now()
	return r, result, nil
}

// processEvalResult archives an eval round's outcome, records
// participation for every accepted miner, folds scores into the
// Reputation Store, and reports the round's winner.
func (s *Scheduler) processEvalResult(ctx context.Context, r types.Round, result round.Result) (string, error) {
	now := time.Now()

	if result.Aborted {
		if err := s.store.ArchiveRound(ctx, r, result, now); err != nil {
			return "", fmt.Errorf("scheduler: archive aborted eval round %q: %w", r.RoundID, err)
		}
		s.log.Warn().Str("round_id", r.RoundID).Msg("eval round aborted, events source unavailable")
		s.notify(r, result)
		return "", nil
	}

	result.Predictions = rankPredictions(result.Predictions)
	if err := s.store.ArchiveRound(ctx, r, result, now); err != nil {
		return "", fmt.Errorf("scheduler: archive eval round %q: %w", r.RoundID, err)
	}
	if err := s.archiver.WriteRound(ctx, r, result); err != nil {
		s.log.Warn().Err(err).Str("round_id", r.RoundID).Msg("cold storage mirror failed")
	}
	s.notify(r, result)

	for _, p := range result.Predictions {
		if !p.Accepted {
			continue
		}
		if err := s.store.RecordParticipation(ctx, r.JobID, p.MinerID, now); err != nil {
			s.log.Error().Err(err).Str("miner_id", p.MinerID).Msg("failed to record participation")
		}
	}

	if _, err := s.store.UpdateScores(ctx, r.JobID, types.RoundEval, result.Predictions, now); err != nil {
		return "", fmt.Errorf("scheduler: update scores for eval round %q: %w", r.RoundID, err)
	}

	if len(result.Predictions) > 0 && result.Predictions[0].Accepted {
		return result.Predictions[0].MinerID, nil
	}
	return "", nil
}

// processLiveResult archives a live round's outcome, folds its score
// into the winner's live EMA, and hands the winning decisions to the
// Live Gate unless DRY_RUN suppresses submission.
func (s *Scheduler) processLiveResult(ctx context.Context, r types.Round, result round.Result) error {
	now := time.Now()

	if result.Aborted {
		err := s.store.ArchiveRound(ctx, r, result, now)
		s.notify(r, result)
		return err
	}

	result.Predictions = rankPredictions(result.Predictions)
	if err := s.store.ArchiveRound(ctx, r, result, now); err != nil {
		return fmt.Errorf("scheduler: archive live round %q: %w", r.RoundID, err)
	}
	if err := s.archiver.WriteRound(ctx, r, result); err != nil {
		s.log.Warn().Err(err).Str("round_id", r.RoundID).Msg("cold storage mirror failed")
	}
	s.notify(r, result)
	if _, err := s.store.UpdateScores(ctx, r.JobID, types.RoundLive, result.Predictions, now); err != nil {
		return fmt.Errorf("scheduler: update scores for live round %q: %w", r.RoundID, err)
	}

	if s.dryRun || s.gate == nil {
		return nil
	}
	if len(result.Predictions) == 0 || !result.Predictions[0].Accepted {
		return nil
	}
	winner := result.Predictions[0]
	return s.gate.Submit(ctx, r.RoundID, r.JobID, winner.MinerID, winner.Decisions)
}

// resolveHead sizes the next tick's block range off the Events Source's
// chain head when it implements chainHead, or a fixed fallback span
// otherwise.
func (s *Scheduler) resolveHead(ctx context.Context, pool string, startBlock uint64) uint64 {
	if ch, ok := s.source.(chainHead); ok {
		head, err := ch.HeadBlock(ctx, pool)
		if err == nil {
			return head
		}
		s.log.Warn().Err(err).Msg("head block lookup failed, using fallback span")
	}
	return startBlock + fallbackBlocksPerCheckpoint
}

// rankPredictions returns preds sorted by RawScore descending among
// Accepted predictions (refused miners sort last, unranked), with
// NormalizedRank set to each prediction's 1-based position.
func rankPredictions(preds []types.Prediction) []types.Prediction {
	ranked := make([]types.Prediction, len(preds))
	copy(ranked, preds)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Accepted != ranked[j].Accepted {
			return ranked[i].Accepted
		}
		return ranked[i].RawScore > ranked[j].RawScore
	})
	for i := range ranked {
		ranked[i].NormalizedRank = i + 1
	}
	return ranked
}
