package types

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestPosition_Validate(t *testing.T) {
	valid := Position{TickLower: -100, TickUpper: 100, Amount0: sdkmath.NewInt(10), Amount1: sdkmath.NewInt(10)}
	if err := valid.Validate(10); err != nil {
		t.Errorf("expected valid position, got %v", err)
	}

	tooNarrow := Position{TickLower: -5, TickUpper: 5, Amount0: sdkmath.NewInt(1), Amount1: sdkmath.NewInt(1)}
	if err := tooNarrow.Validate(50); err == nil {
		t.Error("expected error for tick width below minimum")
	}

	inverted := Position{TickLower: 100, TickUpper: -100, Amount0: sdkmath.NewInt(1), Amount1: sdkmath.NewInt(1)}
	if err := inverted.Validate(1); err == nil {
		t.Error("expected error for inverted ticks")
	}

	negative := Position{TickLower: -100, TickUpper: 100, Amount0: sdkmath.NewInt(-1), Amount1: sdkmath.NewInt(1)}
	if err := negative.Validate(1); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestPosition_Equal(t *testing.T) {
	a := Position{TickLower: -100, TickUpper: 100, Amount0: sdkmath.NewInt(10), Amount1: sdkmath.NewInt(20)}
	b := Position{TickLower: -100, TickUpper: 100, Amount0: sdkmath.NewInt(10), Amount1: sdkmath.NewInt(20)}
	c := Position{TickLower: -100, TickUpper: 100, Amount0: sdkmath.NewInt(11), Amount1: sdkmath.NewInt(20)}

	if !a.Equal(b) {
		t.Error("expected a == b")
	}
	if a.Equal(c) {
		t.Error("expected a != c")
	}
}

func TestSetEqual(t *testing.T) {
	a := Position{TickLower: -100, TickUpper: 100, Amount0: sdkmath.NewInt(10), Amount1: sdkmath.NewInt(20)}
	b := Position{TickLower: 0, TickUpper: 200, Amount0: sdkmath.NewInt(5), Amount1: sdkmath.NewInt(5)}

	if !SetEqual([]Position{a, b}, []Position{b, a}) {
		t.Error("expected set equality regardless of order")
	}
	if SetEqual([]Position{a}, []Position{a, b}) {
		t.Error("expected inequality for differing lengths")
	}
	if SetEqual([]Position{a, a}, []Position{a, b}) {
		t.Error("expected inequality when one set has a duplicate the other lacks")
	}
}

func TestInventory_AddSub(t *testing.T) {
	a := Inventory{Amount0: sdkmath.NewInt(10), Amount1: sdkmath.NewInt(20)}
	b := Inventory{Amount0: sdkmath.NewInt(3), Amount1: sdkmath.NewInt(4)}

	sum := a.Add(b)
	if !sum.Amount0.Equal(sdkmath.NewInt(13)) || !sum.Amount1.Equal(sdkmath.NewInt(24)) {
		t.Errorf("unexpected sum: %+v", sum)
	}

	diff := a.Sub(b)
	if !diff.Amount0.Equal(sdkmath.NewInt(7)) || !diff.Amount1.Equal(sdkmath.NewInt(16)) {
		t.Errorf("unexpected diff: %+v", diff)
	}
}

func TestConstraints_Validate(t *testing.T) {
	valid := Constraints{MaxIL: 0.2, MinTickWidth: 10, MaxRebalances: 5}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid constraints, got %v", err)
	}

	invalid := Constraints{MaxIL: 1.5, MinTickWidth: 10, MaxRebalances: 5}
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for max_il out of range")
	}
}

func TestPosition_Liquidity_Amount0OnlyIsPositive(t *testing.T) {
	p := Position{TickLower: -2000, TickUpper: 2000, Amount0: sdkmath.NewInt(1000), Amount1: sdkmath.ZeroInt()}
	l := p.Liquidity()
	if l.IsZero() || l.IsNegative() {
		t.Errorf("expected positive liquidity, got %s", l.String())
	}
}
