/*

This file contains the Round Executor: given a Round and the miners
participating in it, drives every checkpoint, applies each miner's
decision against its own Pool Simulator, scores the outcome, and emits
one Prediction per miner. This is the component the rest of the system
calls "the heart" — everything else either feeds it inputs or consumes
its output.

*/

package round

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elys-network/lpvalidator/internal/events"
	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/scorer"
	"github.com/elys-network/lpvalidator/internal/simulator"
	"github.com/elys-network/lpvalidator/internal/tickmath"
	"github.com/elys-network/lpvalidator/internal/transport"
	"github.com/elys-network/lpvalidator/internal/types"
)

// consecutiveFailureLimit is the number of back-to-back timeouts or
// transport errors that freezes a miner as refused for the rest of the
// round.
const consecutiveFailureLimit = 3

// RunInput is everything the Round Executor needs to drive one Round.
type RunInput struct {
	Round              types.Round
	MinerIDs           []string
	MinerTimeout       time.Duration
	CheckpointInterval uint64
}

// Result is the Round Executor's output. Aborted means an Events Source
// lookup reported events.ErrUnavailable, for the start price or while
// advancing to any checkpoint; the first such failure aborts the round and
// no retry is made. No Predictions are produced and no reputation update
// should follow.
type Result struct {
	Predictions []types.Prediction
	Aborted     bool
}

// Executor drives rounds for one pool.
type Executor struct {
	pool      string
	source    events.Source
	transport transport.Transport
}

// New creates an Executor bound to pool.
func New(pool string, source events.Source, t transport.Transport) *Executor {
	return &Executor{pool: pool, source: source, transport: t}
}

type minerState struct {
	sim                 *simulator.Simulator
	refused             bool
	violating           bool
	consecutiveFailures int
	decisions           []types.RebalanceDecision
}

// Run implements the five-step algorithm: per-miner simulator init,
// checkpoint fan-out, decision application, final valuation, and
// Prediction emission.
func (e *Executor) Run(ctx context.Context, in RunInput) (*Result, error) {
	log := logger.GetForComponent("round")

	if len(in.MinerIDs) == 0 {
		return &Result{}, nil
	}

	startState, startPrice, err := e.resolveStartState(ctx, in.Round.StartBlock)
	if err != nil {
		if errors.Is(err, events.ErrUnavailable) {
			log.Warn().Str("round_id", in.Round.RoundID).Msg("events source unavailable at round start, aborting round")
			return &Result{Aborted: true}, nil
		}
		return nil, err
	}

	miners := make(map[string]*minerState, len(in.MinerIDs))
	for _, id := range in.MinerIDs {
		sim := simulator.New(e.pool, startState, e.source)
		sim.InitOwner(id, in.Round.InitialPositions, in.Round.InitialInventory)
		miners[id] = &minerState{sim: sim}
	}

	checkpoints := in.Round.Checkpoints(in.CheckpointInterval)
	for _, block := range checkpoints {
		if err := e.runCheckpoint(ctx, in, block, miners); err != nil {
			if errors.Is(err, events.ErrUnavailable) {
				log.Warn().Str("round_id", in.Round.RoundID).Uint64("block", block).Msg("events source unavailable mid-round, aborting round")
				return &Result{Aborted: true}, nil
			}
			return nil, err
		}
	}

	finalPrice, err := e.resolveFinalPrice(ctx, in.Round.EndBlock, in.MinerIDs, miners, startState)
	if err != nil {
		return nil, err
	}

	initialAmount0, initialAmount1 := portfolioAmounts(types.Portfolio{
		Positions: in.Round.InitialPositions,
		Inventory: in.Round.InitialInventory,
	}, startPrice)

	predictions := make([]types.Prediction, 0, len(in.MinerIDs))
	for _, id := range in.MinerIDs {
		st := miners[id]
		portfolio, err := st.sim.PortfolioOf(id)
		if err != nil {
			return nil, fmt.Errorf("round: portfolio of %q: %w", id, err)
		}
		portfolio.Refused = st.refused
		portfolio.Violated = st.violating

		prediction := types.Prediction{
			RoundID:        in.Round.RoundID,
			MinerID:        id,
			Accepted:       !st.refused,
			FinalPortfolio: portfolio,
			Decisions:      st.decisions,
		}

		if !st.refused {
			finalAmount0, finalAmount1 := portfolioAmounts(portfolio, finalPrice)
			feesInToken1 := fees1(portfolio, finalPrice)
			result := scorer.Score(scorer.Inputs{
				InitialAmount0: initialAmount0,
				InitialAmount1: initialAmount1,
				InitialPrice:   startPrice,
				FinalAmount0:   finalAmount0,
				FinalAmount1:   finalAmount1,
				FinalPrice:     finalPrice,
				FeesInToken1:   feesInToken1,
				Violating:      st.violating,
			})
			prediction.RawScore = result.Score
		}

		predictions = append(predictions, prediction)
	}

	return &Result{Predictions: predictions}, nil
}

func (e *Executor) resolveStartState(ctx context.Context, block uint64) (types.PoolState, float64, error) {
	sqrtPrice, found, err := e.source.PriceAtOrBefore(ctx, e.pool, block)
	if err != nil {
		return types.PoolState{}, 0, fmt.Errorf("round: resolve start price: %w", err)
	}
	if !found {
		sqrtPrice = new(big.Int).Lsh(big.NewInt(1), 96) // no prior history: default to price 1.0
	}
	price := tickmath.SqrtPriceX96ToPrice(sqrtPrice)
	tick, err := tickmath.TickOfPrice(price)
	if err != nil {
		tick = 0
	}
	return types.PoolState{Block: block, SqrtPriceX96: sqrtPrice, Tick: tick}, price, nil
}

// portfolioAmounts sums the token0/token1 reserves a portfolio's positions
// imply at price, plus its uncommitted inventory.
func portfolioAmounts(p types.Portfolio, price float64) (amount0, amount1 float64) {
	amount0f, _ := new(big.Float).SetInt(p.Inventory.Amount0.BigInt()).Float64()
	amount1f, _ := new(big.Float).SetInt(p.Inventory.Amount1.BigInt()).Float64()
	amount0, amount1 = amount0f, amount1f
	for _, pos := range p.Positions {
		l := pos.Liquidity()
		lf, _ := new(big.Float).SetInt(l.BigInt()).Float64()
		a0, a1 := tickmath.PositionAmounts(lf, pos.TickLower, pos.TickUpper, price)
		amount0 += a0
		amount1 += a1
	}
	return amount0, amount1
}

// fees1 converts a portfolio's accrued fees into a single token1-denominated
// amount at price, for the scorer's value_gain calculation.
func fees1(p types.Portfolio, price float64) float64 {
	f0, _ := new(big.Float).SetInt(p.FeesAccrued.Amount0.BigInt()).Float64()
	f1, _ := new(big.Float).SetInt(p.FeesAccrued.Amount1.BigInt()).Float64()
	return f0*price + f1
}

// resolveFinalPrice determines the price every Prediction is scored
// against. It asks the Events Source for the authoritative price at
// endBlock first; if the Source has no history there, it falls back to a
// non-refused simulator that actually advanced to endBlock, chosen
// deterministically by walking minerIDs in order rather than ranging over
// the miners map (whose iteration order is unspecified by the language).
func (e *Executor) resolveFinalPrice(ctx context.Context, endBlock uint64, minerIDs []string, miners map[string]*minerState, fallback types.PoolState) (float64, error) {
	sqrtPrice, found, err := e.source.PriceAtOrBefore(ctx, e.pool, endBlock)
	if err != nil && !errors.Is(err, events.ErrUnavailable) {
		return 0, fmt.Errorf("round: resolve final price: %w", err)
	}
	if err == nil && found {
		return tickmath.SqrtPriceX96ToPrice(sqrtPrice), nil
	}

	for _, id := range minerIDs {
		st, ok := miners[id]
		if !ok || st.refused {
			continue
		}
		if state := st.sim.State(); state.Block == endBlock {
			return tickmath.SqrtPriceX96ToPrice(state.SqrtPriceX96), nil
		}
	}
	return tickmath.SqrtPriceX96ToPrice(fallback.SqrtPriceX96), nil
}

// runCheckpoint advances every still-active miner's simulator to block,
// fans out a RebalanceQuery to each with a bounded-concurrency errgroup,
// and applies each response.
func (e *Executor) runCheckpoint(ctx context.Context, in RunInput, block uint64, miners map[string]*minerState) error {
	active := make([]string, 0, len(miners))
	for id, st := range miners {
		if !st.refused && !st.violating {
			active = append(active, id)
		}
	}
	if len(active) == 0 {
		return nil
	}

	for _, id := range active {
		if err := miners[id].sim.AdvanceTo(ctx, block); err != nil {
			if errors.Is(err, events.ErrUnavailable) {
				return err
			}
			return fmt.Errorf("round: advance miner %q to block %d: %w", id, block, err)
		}
	}

	type outcome struct {
		minerID  string
		response *types.RebalanceResponse
		err      error
	}
	results := make(chan outcome, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(active))
	for _, id := range active {
		minerID := id
		g.Go(func() error {
			queryCtx, cancel := context.WithTimeout(gctx, in.MinerTimeout)
			defer cancel()

			portfolio, err := miners[minerID].sim.PortfolioOf(minerID)
			if err != nil {
				return err
			}
			req := types.RebalanceQuery{
				RoundID:     in.Round.RoundID,
				JobID:       in.Round.JobID,
				PairAddress: e.pool,
				PoolState:   miners[minerID].sim.State(),
				Portfolio:   portfolio,
				Constraints: in.Round.Constraints,
				Deadline:    time.Now().Add(in.MinerTimeout).UnixMilli(),
			}
			resp, queryErr := e.transport.Query(queryCtx, minerID, req)
			if queryCtx.Err() != nil && queryErr == nil {
				queryErr = transport.ErrTimeout
			}
			results <- outcome{minerID: minerID, response: resp, err: queryErr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(results)

	for o := range results {
		e.applyOutcome(miners[o.minerID], block, in.Round.Constraints, o.response, o.err)
	}
	return nil
}

// applyOutcome implements step 3's per-response decision tree: refusal
// freezes the miner, a no-op decision is free, a changed decision is
// validated and applied, and transport failures count toward the
// three-consecutive-failure refusal rule. Once a miner has violated
// constraints, it is frozen: later checkpoints are skipped entirely so
// rebalance_count and the final portfolio stop changing after the single
// violating transition.
func (e *Executor) applyOutcome(st *minerState, block uint64, constraints types.Constraints, resp *types.RebalanceResponse, err error) {
	if st.violating {
		return
	}
	if errors.Is(err, transport.ErrRefused) {
		st.refused = true
		return
	}
	if err != nil {
		// covers ErrTimeout, ErrTransport, and any other transport-level
		// failure: non-fatal per checkpoint, but three in a row freezes
		// the miner as refused for the rest of the round.
		st.consecutiveFailures++
		if st.consecutiveFailures >= consecutiveFailureLimit {
			st.refused = true
		}
		return
	}

	st.consecutiveFailures = 0

	if resp.Refused {
		st.refused = true
		return
	}

	current, portfolioErr := st.sim.PortfolioOf(resp.MinerID)
	if portfolioErr != nil {
		return
	}

	desired := resp.Decision.Positions
	if types.SetEqual(desired, current.Positions) {
		return
	}

	if !validPositions(desired, constraints) {
		st.violating = true
		return
	}

	if err := st.sim.ApplyRebalance(resp.MinerID, desired); err != nil {
		st.violating = true
		return
	}

	st.decisions = append(st.decisions, types.RebalanceDecision{Block: block, Positions: desired})

	after, err := st.sim.PortfolioOf(resp.MinerID)
	if err == nil && after.RebalanceCount > constraints.MaxRebalances {
		st.violating = true
	}
}

func validPositions(positions []types.Position, constraints types.Constraints) bool {
	for _, p := range positions {
		if err := p.Validate(constraints.MinTickWidth); err != nil {
			return false
		}
	}
	return true
}
