package round

import (
	"context"
	"math/big"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/lpvalidator/internal/transport"
	"github.com/elys-network/lpvalidator/internal/transport/mocktransport"
	"github.com/elys-network/lpvalidator/internal/types"
)

type fakeSource struct {
	evs []types.PoolEvent
}

func (f *fakeSource) EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error) {
	var out []types.PoolEvent
	for _, e := range f.evs {
		if e.BlockNumber >= fromBlock && e.BlockNumber <= toBlock {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error) {
	return new(big.Int).Lsh(big.NewInt(1), 96), true, nil // price 1.0
}

func baseRound() types.Round {
	return types.Round{
		RoundID:    "round-1",
		JobID:      "job-1",
		RoundType:  types.RoundEval,
		StartBlock: 0,
		EndBlock:   30,
		Constraints: types.Constraints{
			MaxIL:         1.0,
			MinTickWidth:  10,
			MaxRebalances: 4,
		},
		InitialInventory: types.ZeroInventory(),
		InitialPositions: []types.Position{
			{TickLower: -1000, TickUpper: 1000, Amount0: sdkmath.NewInt(1000), Amount1: sdkmath.NewInt(2000)},
		},
	}
}

// Scenario 1: perfect preservation. Price unchanged, miner keeps its
// position unchanged at every checkpoint; score should equal fees.
func TestRun_PerfectPreservation(t *testing.T) {
	swap := types.PoolEvent{
		Kind:              types.EventSwap,
		BlockNumber:       15,
		SqrtPriceX96After: new(big.Int).Lsh(big.NewInt(1), 96),
		TickAfter:         0,
		FeePaid:           sdkmath.NewInt(100),
	}
	src := &fakeSource{evs: []types.PoolEvent{swap}}
	mock := mocktransport.New() // default accept, unchanged positions

	exec := New("pool", src, mock)
	res, err := exec.Run(context.Background(), RunInput{
		Round:              baseRound(),
		MinerIDs:           []string{"miner-1"},
		MinerTimeout:       time.Second,
		CheckpointInterval: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Aborted {
		t.Fatal("expected round to complete")
	}
	if len(res.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(res.Predictions))
	}
	p := res.Predictions[0]
	if !p.Accepted {
		t.Error("expected accepted prediction")
	}
	if p.RawScore <= 0 {
		t.Errorf("expected positive score from fees, got %f", p.RawScore)
	}
}

// Scenario 3: refusal. Miner refuses at the first checkpoint; expect
// Accepted=false and no further checkpoints queried.
func TestRun_Refusal(t *testing.T) {
	src := &fakeSource{}
	mock := mocktransport.New()
	mock.SetScript("miner-1", mocktransport.Script{
		10: {Err: transport.ErrRefused},
	})

	exec := New("pool", src, mock)
	res, err := exec.Run(context.Background(), RunInput{
		Round:              baseRound(),
		MinerIDs:           []string{"miner-1"},
		MinerTimeout:       time.Second,
		CheckpointInterval: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(res.Predictions))
	}
	p := res.Predictions[0]
	if p.Accepted {
		t.Error("expected refused miner to be unaccepted")
	}
	if p.RawScore != 0 {
		t.Errorf("expected no score for a refused miner, got %f", p.RawScore)
	}

	calls := mock.Calls()
	for _, c := range calls {
		if c.Block > 10 {
			t.Errorf("expected no queries after refusal at block 10, got call at block %d", c.Block)
		}
	}
}

// Scenario 4: over-rebalance. max_rebalances=4, miner submits 5 distinct
// rebalances across 5 checkpoints; the 5th must be recorded as a
// violation with score 0.
func TestRun_OverRebalance_MarksViolation(t *testing.T) {
	src := &fakeSource{}
	mock := mocktransport.New()

	round := baseRound()
	round.Constraints.MaxRebalances = 4
	round.StartBlock = 0
	round.EndBlock = 50

	script := mocktransport.Script{}
	for i, block := range []uint64{0, 10, 20, 30, 40, 50} {
		tickLower := int32(-1000 - i*10)
		tickUpper := int32(1000 + i*10)
		script[block] = mocktransport.Outcome{
			Response: &types.RebalanceResponse{
				MinerID: "miner-1",
				Decision: types.RebalanceDecision{
					Block: block,
					Positions: []types.Position{
						{TickLower: tickLower, TickUpper: tickUpper, Amount0: sdkmath.NewInt(100), Amount1: sdkmath.NewInt(100)},
					},
				},
			},
		}
	}
	mock.SetScript("miner-1", script)

	exec := New("pool", src, mock)
	res, err := exec.Run(context.Background(), RunInput{
		Round:              round,
		MinerIDs:           []string{"miner-1"},
		MinerTimeout:       time.Second,
		CheckpointInterval: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(res.Predictions))
	}
	p := res.Predictions[0]
	if !p.FinalPortfolio.Violated {
		t.Error("expected the 5th distinct rebalance to mark a violation")
	}
	if p.RawScore != 0 {
		t.Errorf("expected violation to score 0, got %f", p.RawScore)
	}
	if got, max := p.FinalPortfolio.RebalanceCount, round.Constraints.MaxRebalances+1; got != max {
		t.Errorf("expected rebalance_count to freeze at max_rebalances+1 (%d), got %d", max, got)
	}
	if len(p.Decisions) != round.Constraints.MaxRebalances+1 {
		t.Errorf("expected exactly %d applied decisions (frozen after the violating transition), got %d", round.Constraints.MaxRebalances+1, len(p.Decisions))
	}
}

// Scenario 5: transport flake. Miner times out three consecutive
// checkpoints; it must be frozen as refused from the 4th checkpoint
// onward.
func TestRun_TransportFlake_FreezesAfterThreeTimeouts(t *testing.T) {
	src := &fakeSource{}
	mock := mocktransport.New()
	mock.SetScript("miner-1", mocktransport.Script{
		0:  {Err: transport.ErrTimeout},
		10: {Err: transport.ErrTimeout},
		20: {Err: transport.ErrTimeout},
	})

	round := baseRound()
	round.StartBlock = 0
	round.EndBlock = 40

	exec := New("pool", src, mock)
	res, err := exec.Run(context.Background(), RunInput{
		Round:              round,
		MinerIDs:           []string{"miner-1"},
		MinerTimeout:       time.Second,
		CheckpointInterval: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := res.Predictions[0]
	if p.Accepted {
		t.Error("expected miner frozen as refused after 3 consecutive timeouts")
	}

	calls := mock.Calls()
	for _, c := range calls {
		if c.Block > 20 {
			t.Errorf("expected no queries after freezing at block 20, got call at block %d", c.Block)
		}
	}
}

// Boundary: empty miner set completes with an empty prediction list.
func TestRun_EmptyMinerSet(t *testing.T) {
	src := &fakeSource{}
	mock := mocktransport.New()
	exec := New("pool", src, mock)

	res, err := exec.Run(context.Background(), RunInput{
		Round:              baseRound(),
		MinerIDs:           nil,
		MinerTimeout:       time.Second,
		CheckpointInterval: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Predictions) != 0 {
		t.Errorf("expected no predictions for an empty miner set, got %d", len(res.Predictions))
	}
	if res.Aborted {
		t.Error("empty miner set is not a failure")
	}
}

// Boundary: all miners refuse. The round still completes; none of the
// Predictions carry a score.
func TestRun_AllMinersRefuse(t *testing.T) {
	src := &fakeSource{}
	mock := mocktransport.New()
	mock.SetScript("miner-1", mocktransport.Script{0: {Err: transport.ErrRefused}})
	mock.SetScript("miner-2", mocktransport.Script{0: {Err: transport.ErrRefused}})

	exec := New("pool", src, mock)
	res, err := exec.Run(context.Background(), RunInput{
		Round:              baseRound(),
		MinerIDs:           []string{"miner-1", "miner-2"},
		MinerTimeout:       time.Second,
		CheckpointInterval: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Predictions) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(res.Predictions))
	}
	for _, p := range res.Predictions {
		if p.Accepted {
			t.Errorf("expected miner %s to be refused", p.MinerID)
		}
		if p.RawScore != 0 {
			t.Errorf("expected miner %s to carry no score", p.MinerID)
		}
	}
}
