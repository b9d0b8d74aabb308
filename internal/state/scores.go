package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elys-network/lpvalidator/internal/scorer"
	"github.com/elys-network/lpvalidator/internal/types"
)

// GetScores returns every miner's current MinerScore for a job.
func (s *Store) GetScores(ctx context.Context, jobID string) ([]types.MinerScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, miner_id, eval_ema, live_ema, combined, last_eval_at, last_live_at
		FROM miner_scores WHERE job_id = $1;`, jobID)
	if err != nil {
		return nil, fmt.Errorf("state: get scores for %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []types.MinerScore
	for rows.Next() {
		var sc types.MinerScore
		var lastEval, lastLive sql.NullTime
		if err := rows.Scan(&sc.JobID, &sc.MinerID, &sc.EvalEMA, &sc.LiveEMA, &sc.Combined, &lastEval, &lastLive); err != nil {
			return nil, fmt.Errorf("state: scan miner score: %w", err)
		}
		if lastEval.Valid {
			sc.LastEvalAt = lastEval.Time
		}
		if lastLive.Valid {
			sc.LastLiveAt = lastLive.Time
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpdateScores folds one Round's non-refused Predictions into each
// miner's EMA and returns the updated scores. Refused miners are
// skipped entirely — no score row is touched, per the eligibility and
// EMA-update policy (scorer.ViolationUpdatesEMA): a violation still
// updates the EMA with its score of 0, a refusal does not. Serialized
// per job so two rounds for the same job never race on the same row.
func (s *Store) UpdateScores(ctx context.Context, jobID string, roundType types.RoundType, predictions []types.Prediction, at time.Time) ([]types.MinerScore, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("state: update scores: begin tx: %w", err)
	}
	defer tx.Rollback()

	isLive := roundType == types.RoundLive
	var updated []types.MinerScore

	for _, p := range predictions {
		if !p.Accepted {
			continue // refused: no EMA update, no participation credit
		}
		if p.FinalPortfolio.Violated && !scorer.ViolationUpdatesEMA {
			continue
		}

		var prevEval, prevLive, prevCombined float64
		var hadEval, hadLive bool
		var lastEval, lastLive sql.NullTime

		row := tx.QueryRowContext(ctx, `
			SELECT eval_ema, live_ema, combined, had_eval, had_live, last_eval_at, last_live_at
			FROM miner_scores WHERE job_id = $1 AND miner_id = $2;`, jobID, p.MinerID)
		err := row.Scan(&prevEval, &prevLive, &prevCombined, &hadEval, &hadLive, &lastEval, &lastLive)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("state: update scores: load %q: %w", p.MinerID, err)
		}

		evalEMA, liveEMA, combined := scorer.UpdateEMA(prevEval, prevLive, hadEval, hadLive, p.RawScore, isLive)

		if isLive {
			hadLive = true
			lastLive = sql.NullTime{Time: at, Valid: true}
		} else {
			hadEval = true
			lastEval = sql.NullTime{Time: at, Valid: true}
		}

		const upsert = `
			INSERT INTO miner_scores (job_id, miner_id, eval_ema, live_ema, combined, had_eval, had_live, last_eval_at, last_live_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (job_id, miner_id) DO UPDATE SET
				eval_ema = EXCLUDED.eval_ema, live_ema = EXCLUDED.live_ema, combined = EXCLUDED.combined,
				had_eval = EXCLUDED.had_eval, had_live = EXCLUDED.had_live,
				last_eval_at = EXCLUDED.last_eval_at, last_live_at = EXCLUDED.last_live_at;`
		if _, err := tx.ExecContext(ctx, upsert, jobID, p.MinerID, evalEMA, liveEMA, combined, hadEval, hadLive, lastEval, lastLive); err != nil {
			return nil, fmt.Errorf("state: update scores: upsert %q: %w", p.MinerID, err)
		}

		sc := types.MinerScore{MinerID: p.MinerID, JobID: jobID, EvalEMA: evalEMA, LiveEMA: liveEMA, Combined: combined}
		if lastEval.Valid {
			sc.LastEvalAt = lastEval.Time
		}
		if lastLive.Valid {
			sc.LastLiveAt = lastLive.Time
		}
		updated = append(updated, sc)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("state: update scores: commit: %w", err)
	}
	return updated, nil
}
