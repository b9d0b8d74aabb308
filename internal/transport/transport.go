/*

This file contains the Transport contract the Round Executor drives: one
unary call per miner per checkpoint, abstracted away from whatever
protocol actually carries it. Implementations live in subpackages
(grpctransport, mocktransport).

*/

package transport

import (
	"context"
	"errors"

	"github.com/elys-network/lpvalidator/internal/types"
)

var (
	// ErrTimeout means the miner did not respond before the deadline.
	// Non-fatal for the round; the caller counts it toward the
	// three-consecutive-failure rule rather than treating it as a refusal.
	ErrTimeout = errors.New("miner query timed out")
	// ErrRefused means the miner explicitly declined to participate; the
	// Round Executor stops querying it for the rest of the round.
	ErrRefused = errors.New("miner refused the query")
	// ErrTransport covers connection-level failures distinct from a
	// timeout: dial failures, resets, malformed responses.
	ErrTransport = errors.New("transport error")
)

// Transport sends a RebalanceQuery to a named miner and returns its
// response. The deadline embedded in ctx governs the call; callers
// should not rely on the RebalanceQuery's own Deadline field for
// cancellation, only as information passed to the miner.
type Transport interface {
	Query(ctx context.Context, minerID string, req types.RebalanceQuery) (*types.RebalanceResponse, error)
}
