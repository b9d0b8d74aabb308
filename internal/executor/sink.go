/*

This file contains the executor.Sink contract: the boundary between a
live round's winning decisions and whatever actually moves the vault's
liquidity on-chain. The Live Gate is the only caller; this package never
talks to the Reputation Store or the scheduler directly.

*/

package executor

import (
	"context"

	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/types"
)

// Sink submits one miner's winning decisions for a live round. Submit must
// be idempotent by roundID: the Live Gate retries on failure and may call
// Submit again for a round it already partially submitted.
type Sink interface {
	Submit(ctx context.Context, roundID string, decisions []types.RebalanceDecision) error
}

// LogSink is a Sink that never touches the chain: decisions only ever
// reach a log line. cmd/validator wires it as the Live Gate's sink whether
// or not DRY_RUN is set; under DRY_RUN the scheduler does not call the Live
// Gate at all.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Submit logs the decisions it would have submitted and returns nil.
func (s *LogSink) Submit(ctx context.Context, roundID string, decisions []types.RebalanceDecision) error {
	logger.GetForComponent("executor").Info().
		Str("round_id", roundID).
		Int("decisions", len(decisions)).
		Msg("dry run: suppressing live submission")
	return nil
}
