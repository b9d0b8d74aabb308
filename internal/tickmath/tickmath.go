/*

This file contains the tick/price math used throughout the scoring and
simulation pipeline: converting between tick indices and prices, pricing a
concentrated-liquidity position at a given price, and inverting deposited
amounts into a liquidity value. All functions are pure and deterministic;
only SqrtPriceX96ToPrice allocates (big.Float intermediates).

*/

package tickmath

import (
	"errors"
	"math"
	"math/big"
)

var (
	// ErrNonPositivePrice is returned by TickOfPrice for prices that cannot
	// have arisen from a real pool state.
	ErrNonPositivePrice = errors.New("price must be positive")
)

const tickBase = 1.0001

// PriceOfTick returns 1.0001^t, the price of one unit of token0 in token1
// at tick t.
func PriceOfTick(t int32) float64 {
	return math.Pow(tickBase, float64(t))
}

// TickOfPrice returns floor(log(p) / log(1.0001)), the tick whose price is
// the largest tick price not exceeding p.
func TickOfPrice(p float64) (int32, error) {
	if p <= 0 {
		return 0, ErrNonPositivePrice
	}
	tick := int32(math.Floor(math.Log(p) / math.Log(tickBase)))
	// the float log ratio can land one tick off; correct against PriceOfTick
	// so a tick's own price maps back to that tick.
	if PriceOfTick(tick+1) <= p {
		tick++
	} else if PriceOfTick(tick) > p {
		tick--
	}
	return tick, nil
}

// SqrtPriceX96ToPrice converts a Uniswap-v3-style Q96 fixed point square
// root price into a plain float64 price: (sqrtPriceX96 / 2^96)^2.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int) float64 {
	if sqrtPriceX96 == nil {
		return 0
	}
	q96 := new(big.Float).SetInt(sqrtPriceX96)
	denom := new(big.Float).SetFloat64(math.Pow(2, 96))
	sqrtPrice, _ := new(big.Float).Quo(q96, denom).Float64()
	return sqrtPrice * sqrtPrice
}

// position range in sqrt-price space, used by PositionValue and
// LiquidityFromAmounts.
func sqrtBounds(tickLower, tickUpper int32) (sqrtPLower, sqrtPUpper float64) {
	return math.Sqrt(PriceOfTick(tickLower)), math.Sqrt(PriceOfTick(tickUpper))
}

// PositionValue returns the value of liquidity L held over [tickLower,
// tickUpper) at the given current price, denominated in token1.
func PositionValue(liquidity float64, tickLower, tickUpper int32, priceNow float64) float64 {
	sqrtPLower, sqrtPUpper := sqrtBounds(tickLower, tickUpper)
	sqrtPNow := math.Sqrt(priceNow)

	priceLower := PriceOfTick(tickLower)
	priceUpper := PriceOfTick(tickUpper)

	switch {
	case priceNow <= priceLower:
		amount0 := liquidity * (1/sqrtPLower - 1/sqrtPUpper)
		return amount0 * priceNow
	case priceNow >= priceUpper:
		amount1 := liquidity * (sqrtPUpper - sqrtPLower)
		return amount1
	default:
		amount0 := liquidity * (1/sqrtPNow - 1/sqrtPUpper)
		amount1 := liquidity * (sqrtPNow - sqrtPLower)
		return amount0*priceNow + amount1
	}
}

// PositionAmounts returns the (amount0, amount1) reserves a position of
// the given liquidity currently holds at priceNow, using the same three
// cases as PositionValue.
func PositionAmounts(liquidity float64, tickLower, tickUpper int32, priceNow float64) (amount0, amount1 float64) {
	sqrtPLower, sqrtPUpper := sqrtBounds(tickLower, tickUpper)
	sqrtPNow := math.Sqrt(priceNow)

	priceLower := PriceOfTick(tickLower)
	priceUpper := PriceOfTick(tickUpper)

	switch {
	case priceNow <= priceLower:
		return liquidity * (1/sqrtPLower - 1/sqrtPUpper), 0
	case priceNow >= priceUpper:
		return 0, liquidity * (sqrtPUpper - sqrtPLower)
	default:
		return liquidity * (1/sqrtPNow - 1/sqrtPUpper), liquidity * (sqrtPNow - sqrtPLower)
	}
}

// LiquidityOfPosition returns the liquidity implied by a position's
// committed amounts, independent of the current price. Unlike
// LiquidityFromAmounts, which takes the binding side at a given price,
// this uses the two price-independent boundary formulas (the amount0
// formula evaluated as if price were at or below tickLower, the amount1
// formula evaluated as if price were at or above tickUpper) and takes the
// smaller of the two non-zero results, since a valid mint's amounts are
// always mutually consistent with exactly one such L.
func LiquidityOfPosition(amount0, amount1 float64, tickLower, tickUpper int32) float64 {
	sqrtPLower, sqrtPUpper := sqrtBounds(tickLower, tickUpper)

	var l0, l1 float64
	if diff := 1/sqrtPLower - 1/sqrtPUpper; diff > 0 {
		l0 = amount0 / diff
	}
	if diff := sqrtPUpper - sqrtPLower; diff > 0 {
		l1 = amount1 / diff
	}

	switch {
	case amount0 == 0:
		return l1
	case amount1 == 0:
		return l0
	default:
		return math.Min(l0, l1)
	}
}

// LiquidityFromAmounts inverts deposited token amounts into a liquidity
// value using the standard v3 inversion. When the current price places the
// position fully on one side of the range, only the corresponding amount
// is binding; in range with both amounts given, the smaller of the two
// implied liquidity values is used since a deposit can only use liquidity
// both amounts can support. In range, a zero amount counts as not given and
// the other amount alone decides, as in LiquidityOfPosition.
func LiquidityFromAmounts(amount0, amount1 float64, tickLower, tickUpper int32, priceNow float64) float64 {
	sqrtPLower, sqrtPUpper := sqrtBounds(tickLower, tickUpper)
	sqrtPNow := math.Sqrt(priceNow)

	priceLower := PriceOfTick(tickLower)
	priceUpper := PriceOfTick(tickUpper)

	switch {
	case priceNow <= priceLower:
		if diff := 1/sqrtPLower - 1/sqrtPUpper; diff > 0 {
			return amount0 / diff
		}
		return 0
	case priceNow >= priceUpper:
		if diff := sqrtPUpper - sqrtPLower; diff > 0 {
			return amount1 / diff
		}
		return 0
	default:
		l0 := math.Inf(1)
		if diff := 1/sqrtPNow - 1/sqrtPUpper; diff > 0 {
			l0 = amount0 / diff
		}
		l1 := math.Inf(1)
		if diff := sqrtPNow - sqrtPLower; diff > 0 {
			l1 = amount1 / diff
		}
		switch {
		case amount0 == 0:
			return l1
		case amount1 == 0:
			return l0
		}
		return math.Min(l0, l1)
	}
}
