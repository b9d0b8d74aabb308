package simulator

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"

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
	return nil, false, nil
}

func startState() types.PoolState {
	return types.PoolState{Block: 0, SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Tick: 0, FeeTierBps: 30}
}

func TestSimulator_ApplyRebalance_NoOpConservesValue(t *testing.T) {
	src := &fakeSource{}
	sim := New("pool", startState(), src)
	sim.InitOwner("miner-1", nil, types.Inventory{Amount0: sdkmath.NewInt(1000), Amount1: sdkmath.NewInt(1000)})

	positions := []types.Position{
		{TickLower: -1000, TickUpper: 1000, Amount0: sdkmath.NewInt(100), Amount1: sdkmath.NewInt(100)},
	}
	if err := sim.ApplyRebalance("miner-1", positions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before, err := sim.PortfolioOf("miner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Re-applying the identical position set is a no-op on total holdings:
	// everything closed comes right back out.
	if err := sim.ApplyRebalance("miner-1", positions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, err := sim.PortfolioOf("miner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	beforeTotal := before.Inventory.Amount0.Add(before.Positions[0].Amount0)
	afterTotal := after.Inventory.Amount0.Add(after.Positions[0].Amount0)
	if !beforeTotal.Equal(afterTotal) {
		t.Errorf("expected conservation of amount0: before %s after %s", beforeTotal, afterTotal)
	}
}

func TestSimulator_ApplyRebalance_InsufficientInventory(t *testing.T) {
	src := &fakeSource{}
	sim := New("pool", startState(), src)
	sim.InitOwner("miner-1", nil, types.Inventory{Amount0: sdkmath.NewInt(10), Amount1: sdkmath.NewInt(10)})

	positions := []types.Position{
		{TickLower: -1000, TickUpper: 1000, Amount0: sdkmath.NewInt(1000), Amount1: sdkmath.NewInt(1000)},
	}
	err := sim.ApplyRebalance("miner-1", positions)
	if err != ErrInsufficientInventory {
		t.Errorf("expected ErrInsufficientInventory, got %v", err)
	}
}

func TestSimulator_AdvanceTo_CreditsFeesToInRangePosition(t *testing.T) {
	swap := types.PoolEvent{
		Kind:              types.EventSwap,
		BlockNumber:       10,
		LogIndex:          0,
		SqrtPriceX96After: startState().SqrtPriceX96,
		TickAfter:         0, // no crossing
		FeePaid:           sdkmath.NewInt(1000),
	}
	src := &fakeSource{evs: []types.PoolEvent{swap}}
	sim := New("pool", startState(), src)
	sim.InitOwner("miner-1", []types.Position{
		{TickLower: -1000, TickUpper: 1000, Amount0: sdkmath.NewInt(100), Amount1: sdkmath.NewInt(100)},
	}, types.ZeroInventory())

	if err := sim.AdvanceTo(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := sim.PortfolioOf("miner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FeesAccrued.Amount0.IsZero() {
		t.Error("expected the sole in-range position to receive the entire fee")
	}
}

func TestSimulator_AdvanceTo_OutOfRangePositionAccruesNoFees(t *testing.T) {
	swap := types.PoolEvent{
		Kind:              types.EventSwap,
		BlockNumber:       10,
		LogIndex:          0,
		SqrtPriceX96After: startState().SqrtPriceX96,
		TickAfter:         0,
		FeePaid:           sdkmath.NewInt(1000),
	}
	src := &fakeSource{evs: []types.PoolEvent{swap}}
	sim := New("pool", startState(), src)
	sim.InitOwner("miner-1", []types.Position{
		{TickLower: 5000, TickUpper: 6000, Amount0: sdkmath.NewInt(100), Amount1: sdkmath.NewInt(100)},
	}, types.ZeroInventory())

	if err := sim.AdvanceTo(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := sim.PortfolioOf("miner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.FeesAccrued.Amount0.IsZero() {
		t.Errorf("expected out-of-range position to accrue no fees, got %s", p.FeesAccrued.Amount0)
	}
}
