/*

This file contains the Events Source contract: a read-only, ordered stream
of pool events plus a point-in-time price lookup. Implementations live in
subpackages (pgevents, cachedevents); this package defines only the
interface and its sentinel errors so the simulator and cache decorator
never import a concrete driver.

*/

package events

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/elys-network/lpvalidator/internal/types"
)

var (
	// ErrUnavailable signals a transport-level failure (connection refused,
	// context deadline, pool exhaustion). Retryable by the caller.
	ErrUnavailable = errors.New("events source unavailable")
)

// Source streams a pool's historical event log and answers point-in-time
// price queries against it. NotFound is not a distinct error: an empty
// slice with a nil error is a valid, empty result.
type Source interface {
	// EventsIn returns every event for pool with fromBlock <= block_number
	// <= toBlock, strictly ordered by (block_number, log_index).
	EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error)

	// PriceAtOrBefore returns the last known sqrt_price at block <= target,
	// and false if no event for pool exists at or before that block.
	PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error)
}

// NormalizePool lowercases and strips a leading "0x" so callers can key
// caches and tables on a pool address regardless of how it was submitted.
func NormalizePool(pool string) string {
	pool = strings.ToLower(pool)
	return strings.TrimPrefix(pool, "0x")
}
