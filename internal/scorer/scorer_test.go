package scorer

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestScore_PerfectPreservation(t *testing.T) {
	// price unchanged, amounts unchanged, only fees accrued.
	result := Score(Inputs{
		InitialAmount0: 1000,
		InitialAmount1: 2000,
		InitialPrice:   1.0,
		FinalAmount0:   1000,
		FinalAmount1:   2000,
		FinalPrice:     1.0,
		FeesInToken1:   50,
	})
	if result.InvLoss != 0 {
		t.Errorf("expected inv_loss 0, got %f", result.InvLoss)
	}
	if !approxEqual(result.Penalty, 1.0, 1e-9) {
		t.Errorf("expected penalty 1, got %f", result.Penalty)
	}
	if !approxEqual(result.Score, 50, 1e-9) {
		t.Errorf("expected score == fees (50), got %f", result.Score)
	}
}

func TestScore_PureIL_PenalizesGain(t *testing.T) {
	result := Score(Inputs{
		InitialAmount0: 1000,
		InitialAmount1: 2000,
		InitialPrice:   1.0,
		FinalAmount0:   700,
		FinalAmount1:   2600,
		FinalPrice:     2.0,
		FeesInToken1:   0,
	})
	if result.InvLoss <= 0 {
		t.Errorf("expected positive inv_loss from amount0 decline, got %f", result.InvLoss)
	}
	if result.Penalty >= 1.0 {
		t.Errorf("expected penalty < 1 under IL, got %f", result.Penalty)
	}
}

func TestScore_Violating_IsAlwaysZero(t *testing.T) {
	result := Score(Inputs{
		InitialAmount0: 1000,
		InitialAmount1: 2000,
		InitialPrice:   1.0,
		FinalAmount0:   5000,
		FinalAmount1:   5000,
		FinalPrice:     1.0,
		Violating:      true,
	})
	if result.Score != 0 {
		t.Errorf("expected violating score 0, got %f", result.Score)
	}
}

func TestScore_NegativeGainDividedByPenalty(t *testing.T) {
	result := Score(Inputs{
		InitialAmount0: 1000,
		InitialAmount1: 2000,
		InitialPrice:   1.0,
		FinalAmount0:   500,
		FinalAmount1:   1000,
		FinalPrice:     1.0,
	})
	if result.ValueGain >= 0 {
		t.Fatalf("expected negative value gain in this scenario, got %f", result.ValueGain)
	}
	// for negative gain, score = value_gain / penalty, which is more
	// negative than value_gain * penalty would be (penalty in (0,1]).
	moreNegative := result.ValueGain / result.Penalty
	if !approxEqual(result.Score, moreNegative, 1e-9) {
		t.Errorf("expected division policy for negative gain: got %f want %f", result.Score, moreNegative)
	}
}

func TestUpdateEMA_FirstObservationReplaces(t *testing.T) {
	evalEMA, _, combined := UpdateEMA(0, 0, false, false, 42, false)
	if evalEMA != 42 {
		t.Errorf("expected first observation to replace EMA, got %f", evalEMA)
	}
	if !approxEqual(combined, combinedEval*42, 1e-9) {
		t.Errorf("unexpected combined: %f", combined)
	}
}

func TestUpdateEMA_Blends(t *testing.T) {
	evalEMA, _, _ := UpdateEMA(10, 0, true, false, 20, false)
	want := 0.9*10 + 0.1*20
	if !approxEqual(evalEMA, want, 1e-9) {
		t.Errorf("eval_ema = %f, want %f", evalEMA, want)
	}

	_, liveEMA, _ := UpdateEMA(0, 10, false, true, 20, true)
	wantLive := 0.7*10 + 0.3*20
	if !approxEqual(liveEMA, wantLive, 1e-9) {
		t.Errorf("live_ema = %f, want %f", liveEMA, wantLive)
	}
}

func TestUpdateEMA_MonotonicConvergenceToZero(t *testing.T) {
	evalEMA := 100.0
	hadPrior := true
	for i := 0; i < 200; i++ {
		next, _, _ := UpdateEMA(evalEMA, 0, hadPrior, false, 0, false)
		if next > evalEMA {
			t.Fatalf("expected monotonic decrease toward 0, went from %f to %f", evalEMA, next)
		}
		evalEMA = next
	}
	if evalEMA >= 1e-6 {
		t.Errorf("expected convergence near 0, got %f", evalEMA)
	}
}

func TestBetter_TieBrokenByInvLoss(t *testing.T) {
	a := Result{Score: 10, InvLoss: 0.5}
	b := Result{Score: 10, InvLoss: 0.2}
	if Better(a, b) {
		t.Error("expected b (lower inv_loss) to be better on tie")
	}
	if !Better(b, a) {
		t.Error("expected b to be better than a")
	}
}
