package mocktransport

import (
	"context"
	"testing"

	"github.com/elys-network/lpvalidator/internal/transport"
	"github.com/elys-network/lpvalidator/internal/types"
)

func TestClient_DefaultAcceptsUnscriptedMiner(t *testing.T) {
	c := New()
	req := types.RebalanceQuery{PoolState: types.PoolState{Block: 100}}

	resp, err := c.Query(context.Background(), "miner-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Refused {
		t.Error("expected default accept")
	}
}

func TestClient_ScriptedRefusal(t *testing.T) {
	c := New()
	c.SetScript("miner-1", Script{
		100: {Err: transport.ErrRefused},
	})

	req := types.RebalanceQuery{PoolState: types.PoolState{Block: 100}}
	_, err := c.Query(context.Background(), "miner-1", req)
	if err != transport.ErrRefused {
		t.Errorf("expected ErrRefused, got %v", err)
	}
}

func TestClient_ScriptedTimeoutThenDefaultAtOtherBlocks(t *testing.T) {
	c := New()
	c.SetScript("miner-1", Script{
		100: {Err: transport.ErrTimeout},
	})

	req100 := types.RebalanceQuery{PoolState: types.PoolState{Block: 100}}
	if _, err := c.Query(context.Background(), "miner-1", req100); err != transport.ErrTimeout {
		t.Errorf("expected ErrTimeout at block 100, got %v", err)
	}

	req200 := types.RebalanceQuery{PoolState: types.PoolState{Block: 200}}
	if _, err := c.Query(context.Background(), "miner-1", req200); err != nil {
		t.Errorf("expected default accept at block 200, got %v", err)
	}
}

func TestClient_RecordsCalls(t *testing.T) {
	c := New()
	req := types.RebalanceQuery{PoolState: types.PoolState{Block: 50}}
	_, _ = c.Query(context.Background(), "miner-1", req)
	_, _ = c.Query(context.Background(), "miner-2", req)

	calls := c.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
}
