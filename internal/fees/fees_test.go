package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBasic(t *testing.T) {
	// 10% total on one unit of 1e9.
	fb, err := Split(1_000_000_000, 300, 200, 500)
	require.NoError(t, err)

	assert.Equal(t, uint64(100_000_000), fb.TotalFees)
	assert.Equal(t, uint64(30_000_000), fb.ProtocolFee)
	assert.Equal(t, uint64(20_000_000), fb.ResolverFee)
	assert.Equal(t, uint64(50_000_000), fb.LPFee)
}

func TestSplitExactSum(t *testing.T) {
	// The parts must sum to the total for awkward amounts too.
	amounts := []uint64{0, 1, 7, 99, 1001, 123_456_789, 999_999_999_999}
	rates := []struct {
		protocol, resolver, lp uint16
	}{
		{300, 200, 500},
		{1, 1, 1},
		{9999, 0, 1},
		{0, 0, 100},
		{33, 66, 99},
	}

	for _, amount := range amounts {
		for _, r := range rates {
			fb, err := Split(amount, r.protocol, r.resolver, r.lp)
			require.NoError(t, err)
			assert.Equal(t, fb.TotalFees, fb.ProtocolFee+fb.ResolverFee+fb.LPFee,
				"amount=%d rates=%d/%d/%d", amount, r.protocol, r.resolver, r.lp)
		}
	}
}

func TestSplitSmallAmount(t *testing.T) {
	// 99 at 10% truncates to 9, and the parts still account for all of it.
	fb, err := Split(99, 300, 200, 500)
	require.NoError(t, err)

	assert.Equal(t, uint64(9), fb.TotalFees)
	assert.Equal(t, fb.TotalFees, fb.ProtocolFee+fb.ResolverFee+fb.LPFee)
}

func TestSplitZeroAmount(t *testing.T) {
	fb, err := Split(0, 300, 200, 500)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{}, fb)
}

func TestSplitZeroRates(t *testing.T) {
	fb, err := Split(1_000_000, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{}, fb)
}

func TestEnforceMinimum(t *testing.T) {
	assert.Equal(t, uint64(100), EnforceMinimum(5, 100))
	assert.Equal(t, uint64(500), EnforceMinimum(500, 100))
	assert.Equal(t, uint64(100), EnforceMinimum(100, 100))
}
