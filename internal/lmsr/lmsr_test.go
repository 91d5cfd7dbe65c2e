package lmsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zmart/internal/fixedpoint"
)

const precision = fixedpoint.Precision

func TestCostRejectsSmallB(t *testing.T) {
	_, err := Cost(0, 0, 10*precision)
	assert.ErrorIs(t, err, ErrInvalidBParameter)
}

func TestCostZeroShares(t *testing.T) {
	// C(0, 0) = b * ln(2).
	b := 1000 * precision
	cost, err := Cost(0, 0, b)
	require.NoError(t, err)
	assert.InDelta(t, float64(MaxLoss(b)), float64(cost), float64(precision))
}

func TestPricesBalanced(t *testing.T) {
	b := 1000 * precision
	yes, err := YesPrice(0, 0, b)
	require.NoError(t, err)
	no, err := NoPrice(0, 0, b)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, float64(yes)/float64(precision), 0.01)
	assert.InDelta(t, 0.5, float64(no)/float64(precision), 0.01)
}

func TestPricesSumToOne(t *testing.T) {
	b := 1000 * precision
	scenarios := []struct {
		qYes, qNo uint64
	}{
		{0, 0},
		{100 * precision, 0},
		{0, 100 * precision},
		{500 * precision, 300 * precision},
		{1, 999 * precision},
	}

	for _, s := range scenarios {
		yes, err := YesPrice(s.qYes, s.qNo, b)
		require.NoError(t, err)
		no, err := NoPrice(s.qYes, s.qNo, b)
		require.NoError(t, err)

		// Exact equality, not approximate: the complement is computed by
		// subtraction from one.
		assert.Equal(t, precision, yes+no, "qYes=%d qNo=%d", s.qYes, s.qNo)
	}
}

func TestBuyingRaisesPrice(t *testing.T) {
	b := 1000 * precision
	qYes := 10 * precision
	qNo := 10 * precision

	before, err := YesPrice(qYes, qNo, b)
	require.NoError(t, err)
	after, err := YesPrice(qYes+5*precision, qNo, b)
	require.NoError(t, err)

	assert.Greater(t, after, before)
}

func TestSellProceedsNeverExceedBuyCost(t *testing.T) {
	b := 1000 * precision
	qYes := 20 * precision
	qNo := 10 * precision
	shares := 5 * precision

	costLow, err := Cost(qYes, qNo, b)
	require.NoError(t, err)
	costHigh, err := Cost(qYes+shares, qNo, b)
	require.NoError(t, err)
	buyCost := costHigh - costLow

	proceeds, err := SellProceeds(qYes+shares, qNo, b, true, shares)
	require.NoError(t, err)

	assert.LessOrEqual(t, proceeds, buyCost)
}

func TestSellRejectsOversell(t *testing.T) {
	b := 1000 * precision
	_, err := SellProceeds(precision, precision, b, true, 2*precision)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestSharesForCostConverges(t *testing.T) {
	b := 1000 * precision
	target := 50 * precision

	shares, err := SharesForCost(0, 0, b, true, target)
	require.NoError(t, err)
	require.NotZero(t, shares)

	// The incremental cost of the returned shares must be close to target.
	cost, got, err := BuyCost(0, 0, b, true, target)
	require.NoError(t, err)
	assert.Equal(t, shares, got)
	assert.InDelta(t, float64(target), float64(cost), float64(precision))
	assert.LessOrEqual(t, cost, target+solverTolerance)
}

func TestBuyCostZeroTarget(t *testing.T) {
	b := 1000 * precision
	cost, shares, err := BuyCost(0, 0, b, true, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, shares, solverTolerance)
	assert.LessOrEqual(t, cost, solverTolerance)
}

func TestMaxLossExact(t *testing.T) {
	// 1000.0 in fixed-point yields exactly 693.147180 units.
	assert.Equal(t, uint64(693_147_180_000), MaxLoss(1000*precision))
	assert.Equal(t, uint64(69_314_718_000), MaxLoss(100*precision))
}

func TestBParameterForLoss(t *testing.T) {
	b := BParameterForLoss(693 * precision)
	assert.InDelta(t, float64(1000*precision), float64(b), float64(10*precision))

	// Tiny targets clamp to the minimum.
	assert.Equal(t, MinB, BParameterForLoss(1))
	assert.Equal(t, MinB, BParameterForLoss(0))
}

func TestVerifyBoundedLoss(t *testing.T) {
	b := 1000 * precision
	initial := 1000 * precision

	// 600 lost against a 693 bound.
	assert.NoError(t, VerifyBoundedLoss(initial, 400*precision, b))

	// 800 lost exceeds the bound.
	assert.ErrorIs(t, VerifyBoundedLoss(initial, 200*precision, b), ErrBoundedLossExceeded)

	// Profit is never a loss.
	assert.NoError(t, VerifyBoundedLoss(initial, 1100*precision, b))

	// Exactly at the bound passes.
	assert.NoError(t, VerifyBoundedLoss(initial, initial-MaxLoss(b), b))
}
