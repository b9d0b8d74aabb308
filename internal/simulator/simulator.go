/*

This file contains the Pool Simulator: a stateful replay of one pool's
event log that tracks, independently per owner, the positions and
inventory a hypothetical liquidity provider would hold. The real pool's
own Mint/Burn events are replayed too, purely to reconstruct how much
active liquidity the broader pool had at each tick at the time of each
swap — that total is the denominator against which an owner's own
positions earn a pro-rata share of fees.

*/

package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/lpvalidator/internal/events"
	"github.com/elys-network/lpvalidator/internal/tickmath"
	"github.com/elys-network/lpvalidator/internal/types"
)

// ErrInsufficientInventory is returned by ApplyRebalance when the
// requested new positions commit more of a token than the owner holds.
var ErrInsufficientInventory = errors.New("insufficient inventory for rebalance")

type ownerState struct {
	positions      []types.Position
	inventory      types.Inventory
	fees           types.Inventory
	rebalanceCount int
}

// Simulator replays one pool's events and tracks per-owner portfolios
// against it. It is not safe for concurrent use; callers run one
// Simulator per miner per round, each driven by a single goroutine.
type Simulator struct {
	pool   string
	source events.Source
	state  types.PoolState

	// liquidityDelta holds the real pool's net liquidity change at each
	// tick boundary, accumulated from Mint/Burn events: liquidityDelta[t]
	// is added when price crosses upward through t, subtracted crossing
	// downward.
	liquidityDelta map[int32]float64
	// poolLiquidity is the real pool's active liquidity at state.Tick.
	poolLiquidity float64

	owners map[string]*ownerState
}

// New creates a Simulator bound to pool, starting from state.
func New(pool string, state types.PoolState, source events.Source) *Simulator {
	return &Simulator{
		pool:           pool,
		source:         source,
		state:          state,
		liquidityDelta: make(map[int32]float64),
		owners:         make(map[string]*ownerState),
	}
}

// InitOwner seeds an owner's starting positions and inventory. Must be
// called before the first AdvanceTo for that owner.
func (s *Simulator) InitOwner(owner string, positions []types.Position, inventory types.Inventory) {
	cp := make([]types.Position, len(positions))
	copy(cp, positions)
	s.owners[owner] = &ownerState{
		positions: cp,
		inventory: inventory,
		fees:      types.ZeroInventory(),
	}
}

// State returns the simulator's current pool state.
func (s *Simulator) State() types.PoolState {
	return s.state
}

// AdvanceTo consumes every event up to and including block from the
// Events Source and applies it: Mint/Burn update the real pool's tracked
// liquidity curve, Swap updates price/tick and credits fees to in-range
// owner positions, Collect is a no-op against simulator state since it
// only settles the real pool's own accounting.
func (s *Simulator) AdvanceTo(ctx context.Context, block uint64) error {
	if block <= s.state.Block {
		return nil
	}
	evs, err := s.source.EventsIn(ctx, s.pool, s.state.Block+1, block)
	if err != nil {
		return fmt.Errorf("simulator: advance to %d: %w", block, err)
	}

	for _, e := range evs {
		switch e.Kind {
		case types.EventMint:
			s.applyLiquidityDelta(e.TickLower, e.TickUpper, s.positionLiquidity(e.Amount0, e.Amount1, e.TickLower, e.TickUpper))
		case types.EventBurn:
			s.applyLiquidityDelta(e.TickLower, e.TickUpper, -s.positionLiquidity(e.Amount0, e.Amount1, e.TickLower, e.TickUpper))
		case types.EventSwap:
			s.applySwap(e)
		case types.EventCollect:
			// settles the real pool's own fee accounting; owner fee
			// balances here are tracked independently by credit, not draw.
		}
		s.state.Block = e.BlockNumber
	}
	s.state.Block = block
	return nil
}

func (s *Simulator) positionLiquidity(amount0, amount1 sdkmath.Int, tickLower, tickUpper int32) float64 {
	a0, _ := new(big.Float).SetInt(amount0.BigInt()).Float64()
	a1, _ := new(big.Float).SetInt(amount1.BigInt()).Float64()
	return tickmath.LiquidityOfPosition(a0, a1, tickLower, tickUpper)
}

// applyLiquidityDelta records a net liquidity change over [tickLower,
// tickUpper) in the real pool and, if the pool's current tick already
// falls in that range, applies it to poolLiquidity immediately.
func (s *Simulator) applyLiquidityDelta(tickLower, tickUpper int32, liquidity float64) {
	s.liquidityDelta[tickLower] += liquidity
	s.liquidityDelta[tickUpper] -= liquidity
	if tickLower <= s.state.Tick && s.state.Tick < tickUpper {
		s.poolLiquidity += liquidity
	}
}

// applySwap distributes the swap's fee across the tick segments it
// traverses, crediting each owner position active in a segment by its
// share of that segment's total active liquidity, then updates the
// simulator's price and tick to the post-swap state.
func (s *Simulator) applySwap(e types.PoolEvent) {
	oldTick := s.state.Tick
	newTick := e.TickAfter

	totalFee, _ := new(big.Float).SetInt(e.FeePaid.BigInt()).Float64()

	for _, seg := range s.swapSegments(oldTick, newTick) {
		width := float64(seg.end - seg.start)
		totalWidth := float64(abs32(newTick - oldTick))
		var feeForSegment float64
		if totalWidth == 0 {
			feeForSegment = totalFee
		} else {
			feeForSegment = totalFee * width / totalWidth
		}
		s.creditSegment(seg.start, seg.liquidityAtStart, feeForSegment)
	}

	s.state.Tick = newTick
	s.state.SqrtPriceX96 = e.SqrtPriceX96After
}

type segment struct {
	start, end       int32
	liquidityAtStart float64
}

// swapSegments walks from oldTick to newTick, applying liquidityDelta
// crossings along the way, and returns one segment per tick boundary
// traversed (or a single zero-width segment at oldTick when the swap
// doesn't cross a tick at all).
func (s *Simulator) swapSegments(oldTick, newTick int32) []segment {
	if oldTick == newTick {
		return []segment{{start: oldTick, end: oldTick, liquidityAtStart: s.poolLiquidity}}
	}

	ascending := newTick > oldTick
	breakpoints := s.breakpointsBetween(oldTick, newTick, ascending)

	segs := make([]segment, 0, len(breakpoints)+1)
	cur := oldTick
	liquidity := s.poolLiquidity
	for _, bp := range breakpoints {
		if ascending {
			segs = append(segs, segment{start: cur, end: bp, liquidityAtStart: liquidity})
			liquidity += s.liquidityDelta[bp]
			cur = bp
		} else {
			segs = append(segs, segment{start: bp, end: cur, liquidityAtStart: liquidity})
			liquidity -= s.liquidityDelta[bp]
			cur = bp
		}
	}
	if ascending {
		segs = append(segs, segment{start: cur, end: newTick, liquidityAtStart: liquidity})
	} else {
		segs = append(segs, segment{start: newTick, end: cur, liquidityAtStart: liquidity})
	}

	s.poolLiquidity = liquidity
	return segs
}

// breakpointsBetween returns every tick strictly between oldTick and
// newTick where the real pool's liquidity curve changes, sorted in the
// direction of travel.
func (s *Simulator) breakpointsBetween(oldTick, newTick int32, ascending bool) []int32 {
	lo, hi := oldTick, newTick
	if !ascending {
		lo, hi = newTick, oldTick
	}
	var out []int32
	for tick := range s.liquidityDelta {
		if tick > lo && tick < hi {
			out = append(out, tick)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i] < out[j]
		}
		return out[i] > out[j]
	})
	return out
}

// creditSegment distributes feeAmount across every owner position active
// at tick == start, weighted by each position's share of the segment's
// total active liquidity (the real pool's liquidityAtStart plus every
// tracked owner's liquidity in range). The credited amount is applied to
// fees_accrued.Amount0; the event schema does not disambiguate which
// token a swap's fee was collected in, so this simulator credits all fee
// value through a single consistent side rather than guessing a split.
func (s *Simulator) creditSegment(tick int32, poolLiquidityAtStart, feeAmount float64) {
	if feeAmount == 0 {
		return
	}

	type active struct {
		owner string
		idx   int
		liq   float64
	}
	var actives []active
	ourLiquidity := 0.0

	for owner, st := range s.owners {
		for i, pos := range st.positions {
			if pos.TickLower <= tick && tick < pos.TickUpper {
				l, _ := new(big.Float).SetInt(pos.Liquidity().BigInt()).Float64()
				actives = append(actives, active{owner: owner, idx: i, liq: l})
				ourLiquidity += l
			}
		}
	}

	totalLiquidity := poolLiquidityAtStart + ourLiquidity
	if totalLiquidity <= 0 {
		return
	}

	for _, a := range actives {
		share := a.liq / totalLiquidity
		credited := feeAmount * share
		if credited <= 0 {
			continue
		}
		st := s.owners[a.owner]
		st.fees.Amount0 = st.fees.Amount0.Add(sdkmath.NewInt(int64(credited)))
	}
}

// ApplyRebalance closes every position the owner currently holds,
// crediting accrued fees and releasing unused amounts to inventory, then
// opens newPositions by committing inventory to them. Fails without
// mutating state if newPositions would commit more than the owner holds.
// Counts as one rebalance; callers should skip calling this when a
// miner's decision leaves the position set unchanged.
func (s *Simulator) ApplyRebalance(owner string, newPositions []types.Position) error {
	st, ok := s.owners[owner]
	if !ok {
		return fmt.Errorf("simulator: unknown owner %q", owner)
	}

	closedInventory := st.inventory
	for _, pos := range st.positions {
		closedInventory = closedInventory.Add(types.Inventory{Amount0: pos.Amount0, Amount1: pos.Amount1})
	}

	var committed0, committed1 sdkmath.Int = sdkmath.ZeroInt(), sdkmath.ZeroInt()
	for _, pos := range newPositions {
		committed0 = committed0.Add(pos.Amount0)
		committed1 = committed1.Add(pos.Amount1)
	}

	if committed0.GT(closedInventory.Amount0) || committed1.GT(closedInventory.Amount1) {
		return ErrInsufficientInventory
	}

	st.positions = append([]types.Position{}, newPositions...)
	st.inventory = types.Inventory{
		Amount0: closedInventory.Amount0.Sub(committed0),
		Amount1: closedInventory.Amount1.Sub(committed1),
	}
	st.rebalanceCount++
	return nil
}

// PortfolioOf returns a snapshot of owner's current positions,
// uncommitted inventory, and fees accrued so far.
func (s *Simulator) PortfolioOf(owner string) (types.Portfolio, error) {
	st, ok := s.owners[owner]
	if !ok {
		return types.Portfolio{}, fmt.Errorf("simulator: unknown owner %q", owner)
	}
	positions := append([]types.Position{}, st.positions...)
	return types.Portfolio{
		Positions:      positions,
		Inventory:      st.inventory,
		FeesAccrued:    st.fees,
		RebalanceCount: st.rebalanceCount,
	}, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
