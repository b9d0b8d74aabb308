/*

This file contains the types that make up one round's lifecycle: the Round
itself, the per-miner Prediction it produces, the miner's running
reputation as a MinerScore, and the daily ParticipationRecord used by the
eligibility gate.

*/

package types

import "time"

// RoundType distinguishes scored evaluation rounds, which never touch the
// live vault, from live rounds, whose winning decisions are handed to the
// executor.
type RoundType string

const (
	RoundEval RoundType = "EVAL"
	RoundLive RoundType = "LIVE"
)

// Round is one scheduler-driven replay window for a Job: a span of blocks
// over which every participating miner's portfolio is simulated forward
// from the same starting state.
type Round struct {
	RoundID          string      `json:"round_id"`
	JobID            string      `json:"job_id"`
	RoundType        RoundType   `json:"round_type"`
	StartBlock       uint64      `json:"start_block"`
	EndBlock         uint64      `json:"end_block"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
	Constraints      Constraints `json:"constraints"`
	InitialInventory Inventory   `json:"initial_inventory"`
	InitialPositions []Position  `json:"initial_positions"`
}

// Checkpoints returns the block schedule {StartBlock, StartBlock+interval,
// ..., EndBlock} the Round Executor queries miners at. EndBlock is always
// included even when it does not fall on the interval.
func (r Round) Checkpoints(interval uint64) []uint64 {
	if interval == 0 || r.EndBlock <= r.StartBlock {
		return []uint64{r.StartBlock, r.EndBlock}
	}
	var out []uint64
	for b := r.StartBlock; b < r.EndBlock; b += interval {
		out = append(out, b)
	}
	if out[len(out)-1] != r.EndBlock {
		out = append(out, r.EndBlock)
	}
	return out
}

// Prediction is a single miner's participation record for one Round: the
// sequence of rebalance decisions it made, the portfolio those decisions
// produced, and the score the Round Executor assigned.
type Prediction struct {
	RoundID        string              `json:"round_id"`
	MinerID        string              `json:"miner_id"`
	Accepted       bool                `json:"accepted"`
	FinalPortfolio Portfolio           `json:"final_portfolio"`
	RawScore       float64             `json:"raw_score"`
	NormalizedRank int                 `json:"normalized_rank"`
	Decisions      []RebalanceDecision `json:"decisions"`
}

// MinerScore is a miner's running reputation for one Job: separate EMAs for
// eval and live rounds, and their weighted combination used for ranking.
type MinerScore struct {
	MinerID    string    `json:"miner_id"`
	JobID      string    `json:"job_id"`
	EvalEMA    float64   `json:"eval_ema"`
	LiveEMA    float64   `json:"live_ema"`
	Combined   float64   `json:"combined"`
	LastEvalAt time.Time `json:"last_eval_at"`
	LastLiveAt time.Time `json:"last_live_at"`
}

// ParticipationRecord marks that a miner took part in at least one eval
// round for a Job on a given UTC calendar day. The eligibility gate counts
// distinct days over a rolling window, so this is deliberately coarser
// than a per-round log.
type ParticipationRecord struct {
	MinerID string `json:"miner_id"`
	JobID   string `json:"job_id"`
	UTCDate string `json:"utc_date"` // YYYY-MM-DD
}
