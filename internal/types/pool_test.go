package types

import (
	"math/big"
	"testing"
)

func TestPoolEvent_Before(t *testing.T) {
	a := PoolEvent{BlockNumber: 10, LogIndex: 1}
	b := PoolEvent{BlockNumber: 10, LogIndex: 2}
	c := PoolEvent{BlockNumber: 11, LogIndex: 0}

	if !a.Before(b) {
		t.Error("expected a before b (same block, lower log index)")
	}
	if !b.Before(c) {
		t.Error("expected b before c (lower block)")
	}
	if c.Before(a) {
		t.Error("expected c not before a")
	}
}

func TestPoolEvent_Validate(t *testing.T) {
	swap := PoolEvent{Kind: EventSwap, SqrtPriceX96After: big.NewInt(1)}
	if err := swap.Validate(); err != nil {
		t.Errorf("expected valid swap, got %v", err)
	}

	missingPrice := PoolEvent{Kind: EventSwap}
	if err := missingPrice.Validate(); err == nil {
		t.Error("expected error for swap missing sqrt price")
	}

	unknownKind := PoolEvent{Kind: EventKind("BOGUS")}
	if err := unknownKind.Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
}
