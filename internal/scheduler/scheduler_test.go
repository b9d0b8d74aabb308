package scheduler

import (
	"context"
	"math/big"
	"testing"

	"github.com/elys-network/lpvalidator/internal/types"
)

func TestRankPredictions_AcceptedSortedByScoreDescending(t *testing.T) {
	preds := []types.Prediction{
		{MinerID: "a", Accepted: true, RawScore: 0.2},
		{MinerID: "b", Accepted: true, RawScore: 0.8},
		{MinerID: "c", Accepted: false, RawScore: 0},
		{MinerID: "d", Accepted: true, RawScore: 0.5},
	}

	ranked := rankPredictions(preds)

	want := []string{"b", "d", "a", "c"}
	for i, id := range want {
		if ranked[i].MinerID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, ranked[i].MinerID)
		}
		if ranked[i].NormalizedRank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, ranked[i].NormalizedRank)
		}
	}
}

func TestRankPredictions_DoesNotMutateInput(t *testing.T) {
	preds := []types.Prediction{
		{MinerID: "a", Accepted: true, RawScore: 0.2},
		{MinerID: "b", Accepted: true, RawScore: 0.8},
	}
	_ = rankPredictions(preds)
	if preds[0].MinerID != "a" || preds[0].NormalizedRank != 0 {
		t.Errorf("rankPredictions mutated its input slice: %+v", preds)
	}
}

// noHeadSource implements events.Source but not chainHead, exercising
// resolveHead's fallback path.
type noHeadSource struct{}

func (noHeadSource) EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error) {
	return nil, nil
}

func (noHeadSource) PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error) {
	return nil, false, nil
}

type headSource struct{ head uint64 }

func (headSource) EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error) {
	return nil, nil
}

func (headSource) PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error) {
	return nil, false, nil
}

func (h headSource) HeadBlock(ctx context.Context, pool string) (uint64, error) {
	return h.head, nil
}

func TestResolveHead_FallsBackWithoutChainHead(t *testing.T) {
	s := &Scheduler{source: noHeadSource{}}
	got := s.resolveHead(context.Background(), "0xpool", 100)
	if got != 100+fallbackBlocksPerCheckpoint {
		t.Errorf("expected fallback span, got %d", got)
	}
}

func TestResolveHead_UsesChainHeadWhenAvailable(t *testing.T) {
	s := &Scheduler{source: headSource{head: 12345}}
	got := s.resolveHead(context.Background(), "0xpool", 100)
	if got != 12345 {
		t.Errorf("expected chain head 12345, got %d", got)
	}
}
