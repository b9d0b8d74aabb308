package cachedevents

import (
	"context"
	"math/big"
	"testing"

	"github.com/elys-network/lpvalidator/internal/types"
)

type countingSource struct {
	calls int
	evs   []types.PoolEvent
}

func (c *countingSource) EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error) {
	c.calls++
	return c.evs, nil
}

func (c *countingSource) PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error) {
	return big.NewInt(1), true, nil
}

func TestStore_EventsIn_CachesWithoutRedis(t *testing.T) {
	inner := &countingSource{evs: []types.PoolEvent{{Kind: types.EventSwap, BlockNumber: 10}}}
	store := New(inner, nil, 0)
	ctx := context.Background()

	first, err := store.EventsIn(ctx, "0xpool", 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.EventsIn(ctx, "0xpool", 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("expected inner to be called once, got %d", inner.calls)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 event in both results")
	}
}

func TestStore_EventsIn_DistinctRangesMiss(t *testing.T) {
	inner := &countingSource{evs: []types.PoolEvent{{Kind: types.EventSwap, BlockNumber: 10}}}
	store := New(inner, nil, 0)
	ctx := context.Background()

	if _, err := store.EventsIn(ctx, "0xpool", 1, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.EventsIn(ctx, "0xpool", 101, 200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls != 2 {
		t.Errorf("expected inner to be called twice for distinct ranges, got %d", inner.calls)
	}
}
