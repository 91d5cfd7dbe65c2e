// Package lmsr implements the Logarithmic Market Scoring Rule for binary
// outcome markets: the cost function, instantaneous prices, the inverse
// share solver used for buys, sell proceeds, and the bounded-loss guarantee.
//
// All quantities are fixed-point uint64 values with nine decimals (see
// package fixedpoint). The cost function uses the log-sum-exp factoring so
// large share imbalances cannot overflow intermediate exponentials.
package lmsr

import (
	"errors"
	"math/bits"

	"github.com/alanyoungcy/zmart/internal/fixedpoint"
)

// MinB is the smallest accepted liquidity parameter. Below this the price
// curve becomes too sensitive to individual trades.
const MinB uint64 = 100 * fixedpoint.Precision

// solver parameters for SharesForCost.
const (
	solverIterations = 50
	solverTolerance  = fixedpoint.Precision / 1000
)

var (
	// ErrInvalidBParameter is returned when b is below MinB.
	ErrInvalidBParameter = errors.New("lmsr: b parameter below minimum")
	// ErrInsufficientShares is returned when a sell exceeds outstanding shares.
	ErrInsufficientShares = errors.New("lmsr: insufficient shares")
	// ErrBoundedLossExceeded is returned when realized loss exceeds b*ln(2).
	ErrBoundedLossExceeded = errors.New("lmsr: bounded loss exceeded")
)

// Cost computes C(qYes, qNo) = b * ln(e^(qYes/b) + e^(qNo/b)).
func Cost(qYes, qNo, b uint64) (uint64, error) {
	if b < MinB {
		return 0, ErrInvalidBParameter
	}

	x, err := fixedpoint.Div(qYes, b)
	if err != nil {
		return 0, err
	}
	y, err := fixedpoint.Div(qNo, b)
	if err != nil {
		return 0, err
	}

	logSum, err := fixedpoint.LogSumExp(x, y)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Mul(b, logSum)
}

// YesPrice computes P(YES) = e^(qYes/b) / (e^(qYes/b) + e^(qNo/b)) using the
// softmax form branched on the larger side, so the exponential argument is
// always the non-negative share difference.
func YesPrice(qYes, qNo, b uint64) (uint64, error) {
	if b < MinB {
		return 0, ErrInvalidBParameter
	}

	if qYes >= qNo {
		// YES favored: P = e^(d/b) / (e^(d/b) + 1)
		ratio, err := fixedpoint.Div(qYes-qNo, b)
		if err != nil {
			return 0, err
		}
		expRatio, err := fixedpoint.Exp(ratio)
		if err != nil {
			return 0, err
		}
		denom, err := fixedpoint.Add(expRatio, fixedpoint.Precision)
		if err != nil {
			return 0, err
		}
		return fixedpoint.Div(expRatio, denom)
	}

	// NO favored: P = 1 / (1 + e^(d/b))
	ratio, err := fixedpoint.Div(qNo-qYes, b)
	if err != nil {
		return 0, err
	}
	expRatio, err := fixedpoint.Exp(ratio)
	if err != nil {
		return 0, err
	}
	denom, err := fixedpoint.Add(fixedpoint.Precision, expRatio)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Div(fixedpoint.Precision, denom)
}

// NoPrice computes P(NO) = 1 - P(YES). The complement is exact by
// construction: the two prices always sum to fixedpoint.Precision.
func NoPrice(qYes, qNo, b uint64) (uint64, error) {
	yes, err := YesPrice(qYes, qNo, b)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Sub(fixedpoint.Precision, yes)
}

// SharesForCost finds by binary search the share quantity whose incremental
// cost best matches targetCost. The search range is [0, 20*b], keeping the
// exponent within the safe domain of Exp, and stops once the bracket width
// falls under the tolerance or after the iteration cap.
func SharesForCost(qYes, qNo, b uint64, outcome bool, targetCost uint64) (uint64, error) {
	costBefore, err := Cost(qYes, qNo, b)
	if err != nil {
		return 0, err
	}

	var low uint64
	high, err := mulNoOverflow(20, b)
	if err != nil {
		return 0, err
	}

	for i := 0; i < solverIterations; i++ {
		if high-low <= solverTolerance {
			break
		}
		mid := low + (high-low)/2

		newYes, newNo := qYes, qNo
		if outcome {
			newYes, err = fixedpoint.Add(qYes, mid)
		} else {
			newNo, err = fixedpoint.Add(qNo, mid)
		}
		if err != nil {
			return 0, err
		}

		costAfter, err := Cost(newYes, newNo, b)
		if err != nil {
			return 0, err
		}
		actual, err := fixedpoint.Sub(costAfter, costBefore)
		if err != nil {
			return 0, err
		}

		switch {
		case actual < targetCost:
			low = mid + 1
		case actual > targetCost:
			high = mid
		default:
			return mid, nil
		}
	}

	return low, nil
}

// BuyCost resolves a buy given the amount the trader wants to spend: it finds
// the share quantity via SharesForCost and returns the exact incremental cost
// of that quantity together with the shares. The returned cost never exceeds
// what the solver converged on, so callers can enforce slippage against it.
func BuyCost(qYes, qNo, b uint64, outcome bool, targetCost uint64) (cost, shares uint64, err error) {
	shares, err = SharesForCost(qYes, qNo, b, outcome, targetCost)
	if err != nil {
		return 0, 0, err
	}

	newYes, newNo := qYes, qNo
	if outcome {
		newYes, err = fixedpoint.Add(qYes, shares)
	} else {
		newNo, err = fixedpoint.Add(qNo, shares)
	}
	if err != nil {
		return 0, 0, err
	}

	costBefore, err := Cost(qYes, qNo, b)
	if err != nil {
		return 0, 0, err
	}
	costAfter, err := Cost(newYes, newNo, b)
	if err != nil {
		return 0, 0, err
	}
	cost, err = fixedpoint.Sub(costAfter, costBefore)
	if err != nil {
		return 0, 0, err
	}
	return cost, shares, nil
}

// SellProceeds computes C(q) - C(q - shares), the amount returned for selling
// shares back to the market maker, before fees.
func SellProceeds(qYes, qNo, b uint64, outcome bool, shares uint64) (uint64, error) {
	newYes, newNo := qYes, qNo
	if outcome {
		if shares > qYes {
			return 0, ErrInsufficientShares
		}
		newYes = qYes - shares
	} else {
		if shares > qNo {
			return 0, ErrInsufficientShares
		}
		newNo = qNo - shares
	}

	costBefore, err := Cost(qYes, qNo, b)
	if err != nil {
		return 0, err
	}
	costAfter, err := Cost(newYes, newNo, b)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Sub(costBefore, costAfter)
}

// MaxLoss returns the theoretical worst-case loss of the market maker,
// b * ln(2), via a 128-bit intermediate.
func MaxLoss(b uint64) uint64 {
	hi, lo := bits.Mul64(b, fixedpoint.Ln2)
	if hi >= fixedpoint.Precision {
		return 0
	}
	q, _ := bits.Div64(hi, lo, fixedpoint.Precision)
	return q
}

// BParameterForLoss inverts MaxLoss: given the loss the operator is willing
// to absorb, return the b parameter that bounds loss at that amount, clamped
// up to MinB.
func BParameterForLoss(maxLoss uint64) uint64 {
	hi, lo := bits.Mul64(maxLoss, fixedpoint.Precision)
	if hi >= fixedpoint.Ln2 {
		return MinB
	}
	b, _ := bits.Div64(hi, lo, fixedpoint.Ln2)
	if b < MinB {
		return MinB
	}
	return b
}

// VerifyBoundedLoss checks that the realized loss, the shortfall of current
// liquidity against initial liquidity, stays within MaxLoss(b). A market
// sitting at or above its initial liquidity has zero loss.
func VerifyBoundedLoss(initialLiquidity, currentLiquidity, b uint64) error {
	var actual uint64
	if initialLiquidity > currentLiquidity {
		actual = initialLiquidity - currentLiquidity
	}
	if actual > MaxLoss(b) {
		return ErrBoundedLossExceeded
	}
	return nil
}

func mulNoOverflow(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fixedpoint.ErrOverflow
	}
	return lo, nil
}
