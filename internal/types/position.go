/*

This file contains the types for concentrated-liquidity positions and the
uncommitted token inventory a miner's portfolio holds between positions.

*/

package types

import (
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/lpvalidator/internal/tickmath"
)

// Position is a concentrated-liquidity range: token amounts committed to
// [TickLower, TickUpper). Amounts are unsigned integer token units.
type Position struct {
	TickLower int32       `json:"tick_lower"`
	TickUpper int32       `json:"tick_upper"`
	Amount0   sdkmath.Int `json:"amount0"`
	Amount1   sdkmath.Int `json:"amount1"`
}

// Validate checks the structural invariant tick_upper - tick_lower >= minTickWidth
// and that amounts are present and non-negative.
func (p Position) Validate(minTickWidth int32) error {
	if p.TickUpper <= p.TickLower {
		return ErrInvalidPosition
	}
	if p.TickUpper-p.TickLower < minTickWidth {
		return ErrInvalidPosition
	}
	if p.Amount0.IsNil() || p.Amount1.IsNil() {
		return ErrInvalidPosition
	}
	if p.Amount0.IsNegative() || p.Amount1.IsNegative() {
		return ErrInvalidPosition
	}
	return nil
}

// Liquidity derives the position's liquidity from its committed amounts
// and tick bounds, using the boundary formulas from each side and taking
// the binding one. See tickmath.LiquidityOfPosition.
func (p Position) Liquidity() sdkmath.Int {
	amount0f, _ := new(big.Float).SetInt(p.Amount0.BigInt()).Float64()
	amount1f, _ := new(big.Float).SetInt(p.Amount1.BigInt()).Float64()
	l := tickmath.LiquidityOfPosition(amount0f, amount1f, p.TickLower, p.TickUpper)
	return sdkmath.NewInt(int64(l))
}

// Equal implements the set-equality rule from the wire contract: two
// positions are the same decision iff all four fields match exactly.
func (p Position) Equal(other Position) bool {
	return p.TickLower == other.TickLower &&
		p.TickUpper == other.TickUpper &&
		p.Amount0.Equal(other.Amount0) &&
		p.Amount1.Equal(other.Amount1)
}

// Inventory is uncommitted token holdings, denominated in token units.
type Inventory struct {
	Amount0 sdkmath.Int `json:"amount0"`
	Amount1 sdkmath.Int `json:"amount1"`
}

// ZeroInventory returns an Inventory with both amounts initialized to zero,
// since the zero value of sdkmath.Int is a nil Int that panics on use.
func ZeroInventory() Inventory {
	return Inventory{Amount0: sdkmath.ZeroInt(), Amount1: sdkmath.ZeroInt()}
}

// Validate checks that both amounts are present and non-negative.
func (inv Inventory) Validate() error {
	if inv.Amount0.IsNil() || inv.Amount1.IsNil() {
		return ErrInvalidInventory
	}
	if inv.Amount0.IsNegative() || inv.Amount1.IsNegative() {
		return ErrInvalidInventory
	}
	return nil
}

// Add returns a new Inventory holding the sum of inv and other.
func (inv Inventory) Add(other Inventory) Inventory {
	return Inventory{
		Amount0: inv.Amount0.Add(other.Amount0),
		Amount1: inv.Amount1.Add(other.Amount1),
	}
}

// Sub returns a new Inventory holding inv minus other. Callers must ensure
// sufficiency first; this does not clamp at zero.
func (inv Inventory) Sub(other Inventory) Inventory {
	return Inventory{
		Amount0: inv.Amount0.Sub(other.Amount0),
		Amount1: inv.Amount1.Sub(other.Amount1),
	}
}

// SetEqual reports whether two position slices represent the same set of
// positions under Position.Equal, per the wire contract's
// "set equality by (tick_lower, tick_upper, amount0, amount1)" rule.
func SetEqual(a, b []Position) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, pa := range a {
		matched := false
		for j, pb := range b {
			if used[j] {
				continue
			}
			if pa.Equal(pb) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Constraints bound the strategies a miner may submit for a round. Violating
// them does not reject the round — it marks the miner's Prediction as a
// violation, which scores zero.
type Constraints struct {
	MaxIL         float64 `json:"max_il"`         // fraction in [0,1]
	MinTickWidth  int32   `json:"min_tick_width"` // >= 1
	MaxRebalances int     `json:"max_rebalances"` // >= 0
}

// Validate checks the Constraints struct itself is well-formed (not that a
// portfolio satisfies it).
func (c Constraints) Validate() error {
	if c.MaxIL < 0 || c.MaxIL > 1 {
		return ErrInvalidConstraints
	}
	if c.MinTickWidth < 1 {
		return ErrInvalidConstraints
	}
	if c.MaxRebalances < 0 {
		return ErrInvalidConstraints
	}
	return nil
}

// Portfolio is a miner's owned positions, uncommitted inventory, and
// accrued fees at some point within a round.
type Portfolio struct {
	Positions      []Position `json:"positions"`
	Inventory      Inventory  `json:"inventory"`
	FeesAccrued    Inventory  `json:"fees_accrued"`
	RebalanceCount int        `json:"rebalance_count"`
	Refused        bool       `json:"refused"`
	Violated       bool       `json:"violated"`
}
