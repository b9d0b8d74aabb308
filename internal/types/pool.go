/*

This file contains the types for replaying a pool's on-chain history: the
point-in-time PoolState a simulator advances, and the PoolEvent tagged union
an Events Source streams in block/log order.

*/

package types

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// PoolState is the pool's price and liquidity at a given block.
type PoolState struct {
	Block        uint64   `json:"block"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Tick         int32    `json:"tick"`
	FeeTierBps   uint32   `json:"fee_tier_bps"`
}

// EventKind discriminates the PoolEvent tagged union.
type EventKind string

const (
	EventSwap    EventKind = "SWAP"
	EventMint    EventKind = "MINT"
	EventBurn    EventKind = "BURN"
	EventCollect EventKind = "COLLECT"
)

// PoolEvent is one entry in a pool's event log. Only the fields relevant to
// Kind are populated; the rest are zero. BlockNumber and LogIndex together
// form the total order the simulator replays events in.
type PoolEvent struct {
	Kind        EventKind `json:"kind"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint64    `json:"log_index"`

	// Swap
	SqrtPriceX96After *big.Int    `json:"sqrt_price_x96_after,omitempty"`
	TickAfter         int32       `json:"tick_after,omitempty"`
	AmountIn          sdkmath.Int `json:"amount_in,omitempty"`
	AmountOut         sdkmath.Int `json:"amount_out,omitempty"`
	FeePaid           sdkmath.Int `json:"fee_paid,omitempty"`

	// Mint / Burn
	TickLower int32       `json:"tick_lower,omitempty"`
	TickUpper int32       `json:"tick_upper,omitempty"`
	Amount0   sdkmath.Int `json:"amount0,omitempty"`
	Amount1   sdkmath.Int `json:"amount1,omitempty"`

	// Collect
	CollectedAmount0 sdkmath.Int `json:"collected_amount0,omitempty"`
	CollectedAmount1 sdkmath.Int `json:"collected_amount1,omitempty"`
}

// Validate checks that a decoded event carries the fields its Kind requires.
func (e PoolEvent) Validate() error {
	switch e.Kind {
	case EventSwap:
		if e.SqrtPriceX96After == nil {
			return ErrInvalidPoolEvent
		}
	case EventMint, EventBurn, EventCollect:
		// tick bounds and amounts are checked by callers that decode them;
		// an event missing a Kind entirely is the only structural failure here.
	default:
		return ErrInvalidPoolEvent
	}
	return nil
}

// Before orders two events by (BlockNumber, LogIndex), the total order the
// simulator and Events Source both rely on.
func (e PoolEvent) Before(other PoolEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	return e.LogIndex < other.LogIndex
}
