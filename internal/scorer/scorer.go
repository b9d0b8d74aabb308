/*

This file contains the PoL scoring formula and the EMA update it feeds
into the Reputation Store. Both are pure given their inputs; all side
effects (persistence, locking) live in internal/state.

*/

package scorer

import "math"

// ViolationUpdatesEMA pins the open question in the scoring contract:
// a constraint violation records score=0 and *does* update the EMA, while
// a refusal is omitted from scoring and from the EMA update entirely.
// Named rather than inlined so an operator can flip the policy without
// touching the update call sites.
const ViolationUpdatesEMA = true

const (
	smoothMaxK   = 20.0
	penaltyK     = 10.0
	evalAlpha    = 0.1
	liveAlpha    = 0.3
	combinedEval = 0.6
	combinedLive = 0.4
)

// Inputs to Score for one non-refused miner in one round.
type Inputs struct {
	InitialAmount0 float64
	InitialAmount1 float64
	InitialPrice   float64
	FinalAmount0   float64
	FinalAmount1   float64
	FinalPrice     float64
	FeesInToken1   float64
	Violating      bool
}

// Result is everything Score computes, not just the final number, since
// ties are broken by inv_loss and tests assert on intermediate values.
type Result struct {
	ValueGain float64
	InvLoss   float64
	Penalty   float64
	Score     float64
}

// Score implements the PoL formula from the scoring contract. Violating
// miners always score 0 regardless of their simulated outcome.
func Score(in Inputs) Result {
	if in.Violating {
		return Result{}
	}

	initialValue := in.InitialAmount0*in.InitialPrice + in.InitialAmount1
	finalValue := in.FinalAmount0*in.FinalPrice + in.FinalAmount1 + in.FeesInToken1
	valueGain := finalValue - initialValue

	lossRatio0 := lossRatio(in.InitialAmount0, in.FinalAmount0)
	lossRatio1 := lossRatio(in.InitialAmount1, in.FinalAmount1)
	invLoss := smoothMax(lossRatio0, lossRatio1)
	penalty := math.Exp(-penaltyK * invLoss)

	var score float64
	if valueGain >= 0 {
		score = valueGain * penalty
	} else {
		score = valueGain / penalty
	}

	return Result{ValueGain: valueGain, InvLoss: invLoss, Penalty: penalty, Score: score}
}

func lossRatio(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return math.Max(0, (initial-final)/initial)
}

// smoothMax is a softmax-style smooth maximum of two loss ratios, used so
// the penalty responds continuously rather than discontinuously at the
// point where one ratio overtakes the other.
func smoothMax(r0, r1 float64) float64 {
	return (1/smoothMaxK)*math.Log(math.Exp(smoothMaxK*r0)+math.Exp(smoothMaxK*r1)) - math.Log(2)/smoothMaxK
}

// UpdateEMA returns the new (evalEMA, liveEMA, combined) after folding
// score into the appropriate track. hadPrior distinguishes a genuine
// first observation, which replaces the EMA outright, from blending a
// real score against a meaningless zero seed.
func UpdateEMA(prevEvalEMA, prevLiveEMA float64, hadPriorEval, hadPriorLive bool, score float64, isLive bool) (evalEMA, liveEMA, combined float64) {
	evalEMA, liveEMA = prevEvalEMA, prevLiveEMA

	if isLive {
		if hadPriorLive {
			liveEMA = (1-liveAlpha)*prevLiveEMA + liveAlpha*score
		} else {
			liveEMA = score
		}
	} else {
		if hadPriorEval {
			evalEMA = (1-evalAlpha)*prevEvalEMA + evalAlpha*score
		} else {
			evalEMA = score
		}
	}

	combined = combinedEval*evalEMA + combinedLive*liveEMA
	return evalEMA, liveEMA, combined
}

// Better reports whether a scores higher than b for ranking purposes:
// higher score wins; ties broken by lower inv_loss, then by miner_id
// (left to the caller, which has the miner_id).
func Better(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.InvLoss < b.InvLoss
}
