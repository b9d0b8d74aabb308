package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elys-network/lpvalidator/internal/round"
	"github.com/elys-network/lpvalidator/internal/types"
)

// BeginRound records a Round's starting state before the Round Executor
// runs it, so a crash mid-round still leaves a trail.
func (s *Store) BeginRound(ctx context.Context, r types.Round) error {
	inventoryJSON, err := json.Marshal(r.InitialInventory)
	if err != nil {
		return fmt.Errorf("state: marshal initial inventory: %w", err)
	}
	positionsJSON, err := json.Marshal(r.InitialPositions)
	if err != nil {
		return fmt.Errorf("state: marshal initial positions: %w", err)
	}

	const stmt = `
		INSERT INTO rounds (round_id, job_id, round_type, start_block, end_block,
			max_il, min_tick_width, max_rebalances, initial_inventory, initial_positions, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (round_id) DO NOTHING;`

	_, err = s.db.ExecContext(ctx, stmt,
		r.RoundID, r.JobID, string(r.RoundType), int64(r.StartBlock), int64(r.EndBlock),
		r.Constraints.MaxIL, r.Constraints.MinTickWidth, r.Constraints.MaxRebalances,
		inventoryJSON, positionsJSON, r.StartedAt)
	if err != nil {
		return fmt.Errorf("state: begin round %q: %w", r.RoundID, err)
	}
	return nil
}

// ArchiveRound persists a completed Round Executor result: every
// Prediction plus the round's finished timestamp and abort status. A
// round marked Aborted carries no Predictions and must not be folded
// into reputation via UpdateScores.
func (s *Store) ArchiveRound(ctx context.Context, r types.Round, result round.Result, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: archive round %q: begin tx: %w", r.RoundID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE rounds SET finished_at = $1, aborted = $2 WHERE round_id = $3;`,
		finishedAt, result.Aborted, r.RoundID); err != nil {
		return fmt.Errorf("state: archive round %q: update: %w", r.RoundID, err)
	}

	const insertPrediction = `
		INSERT INTO predictions (round_id, miner_id, accepted, violated, raw_score, normalized_rank, final_portfolio, decisions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (round_id, miner_id) DO UPDATE SET
			accepted = EXCLUDED.accepted, violated = EXCLUDED.violated,
			raw_score = EXCLUDED.raw_score, normalized_rank = EXCLUDED.normalized_rank,
			final_portfolio = EXCLUDED.final_portfolio, decisions = EXCLUDED.decisions;`

	for _, p := range result.Predictions {
		portfolioJSON, err := json.Marshal(p.FinalPortfolio)
		if err != nil {
			return fmt.Errorf("state: marshal final portfolio for %q: %w", p.MinerID, err)
		}
		decisionsJSON, err := json.Marshal(p.Decisions)
		if err != nil {
			return fmt.Errorf("state: marshal decisions for %q: %w", p.MinerID, err)
		}
		if _, err := tx.ExecContext(ctx, insertPrediction,
			p.RoundID, p.MinerID, p.Accepted, p.FinalPortfolio.Violated, p.RawScore, p.NormalizedRank,
			portfolioJSON, decisionsJSON); err != nil {
			return fmt.Errorf("state: insert prediction for %q: %w", p.MinerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: archive round %q: commit: %w", r.RoundID, err)
	}
	return nil
}

// ListRounds returns the most recent rounds for jobID, newest first, for
// the dashboard. It does not load Predictions; call RoundPredictions for
// those.
func (s *Store) ListRounds(ctx context.Context, jobID string, limit int) ([]types.Round, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, job_id, round_type, start_block, end_block,
			max_il, min_tick_width, max_rebalances, started_at, finished_at, aborted
		FROM rounds WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2;`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("state: list rounds for %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []types.Round
	for rows.Next() {
		var r types.Round
		var startBlock, endBlock int64
		var finishedAt sql.NullTime
		var aborted bool
		if err := rows.Scan(&r.RoundID, &r.JobID, &r.RoundType, &startBlock, &endBlock,
			&r.Constraints.MaxIL, &r.Constraints.MinTickWidth, &r.Constraints.MaxRebalances,
			&r.StartedAt, &finishedAt, &aborted); err != nil {
			return nil, fmt.Errorf("state: scan round: %w", err)
		}
		r.StartBlock, r.EndBlock = uint64(startBlock), uint64(endBlock)
		if finishedAt.Valid {
			r.FinishedAt = finishedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RoundPredictions loads every Prediction recorded for a round, e.g. for
// the dashboard or for the Live Gate to find the round's handoff
// decisions.
func (s *Store) RoundPredictions(ctx context.Context, roundID string) ([]types.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, miner_id, accepted, raw_score, normalized_rank, final_portfolio, decisions
		FROM predictions WHERE round_id = $1 ORDER BY normalized_rank;`, roundID)
	if err != nil {
		return nil, fmt.Errorf("state: round predictions %q: %w", roundID, err)
	}
	defer rows.Close()

	var out []types.Prediction
	for rows.Next() {
		var p types.Prediction
		var portfolioJSON, decisionsJSON []byte
		if err := rows.Scan(&p.RoundID, &p.MinerID, &p.Accepted, &p.RawScore, &p.NormalizedRank, &portfolioJSON, &decisionsJSON); err != nil {
			return nil, fmt.Errorf("state: scan prediction: %w", err)
		}
		if err := json.Unmarshal(portfolioJSON, &p.FinalPortfolio); err != nil {
			return nil, fmt.Errorf("state: unmarshal final portfolio: %w", err)
		}
		if err := json.Unmarshal(decisionsJSON, &p.Decisions); err != nil {
			return nil, fmt.Errorf("state: unmarshal decisions: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
