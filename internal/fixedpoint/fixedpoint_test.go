package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fromFloat converts a float to fixed-point for test setup only. Production
// code never touches floats.
func fromFloat(v float64) uint64 {
	return uint64(v * float64(Precision))
}

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want uint64
	}{
		{"one and a half times two", 1_500_000_000, 2_000_000_000, 3_000_000_000},
		{"half times half", 500_000_000, 500_000_000, 250_000_000},
		{"zero left", 0, 5 * Precision, 0},
		{"zero right", 5 * Precision, 0, 0},
		{"identity", Precision, 5_500_000_000, 5_500_000_000},
		{"large by small", 1_000_000 * Precision, 500_000_000, 500_000 * Precision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mul(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMulOverflow(t *testing.T) {
	_, err := Mul(math.MaxUint64, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDiv(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want uint64
	}{
		{"five over two", 5_000_000_000, 2_000_000_000, 2_500_000_000},
		{"quarter", Precision, 4 * Precision, 250_000_000},
		{"identity", 7_500_000_000, Precision, 7_500_000_000},
		{"zero numerator", 0, 5 * Precision, 0},
		{"tiny denominator", Precision, Precision / 1000, 1000 * Precision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Div(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDivByZero(t *testing.T) {
	_, err := Div(5*Precision, 0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivInverse(t *testing.T) {
	a := fromFloat(3.5)
	b := fromFloat(7.2)

	product, err := Mul(a, b)
	require.NoError(t, err)
	back, err := Div(product, b)
	require.NoError(t, err)

	assert.InDelta(t, float64(a), float64(back), 10)
}

func TestAddSub(t *testing.T) {
	sum, err := Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	_, err = Add(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	diff, err := Sub(5, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), diff)

	_, err = Sub(3, 5)
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestExp(t *testing.T) {
	// e^0 = 1 exactly.
	got, err := Exp(0)
	require.NoError(t, err)
	assert.Equal(t, Precision, got)

	// e^1 within 1%.
	got, err = Exp(Precision)
	require.NoError(t, err)
	assert.InDelta(t, 2.718281828, float64(got)/float64(Precision), 0.03)
}

func TestExpTooLarge(t *testing.T) {
	_, err := Exp(25 * Precision)
	assert.ErrorIs(t, err, ErrExponentTooLarge)
}

func TestLn(t *testing.T) {
	// ln(1) = 0 exactly.
	got, err := Ln(Precision)
	require.NoError(t, err)
	assert.Zero(t, got)

	// ln(e) within 1%.
	got, err = Ln(fromFloat(2.718281828))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(got)/float64(Precision), 0.01)

	// ln(2) close to the stored constant.
	got, err = Ln(2 * Precision)
	require.NoError(t, err)
	assert.InDelta(t, float64(Ln2), float64(got), float64(Precision)/100)
}

func TestLnZero(t *testing.T) {
	_, err := Ln(0)
	assert.ErrorIs(t, err, ErrInvalidLogarithm)
}

func TestLnRangeReduction(t *testing.T) {
	// Values far outside [0.5, 2.0] must still approximate well.
	for _, v := range []float64{4.0, 8.0, 100.0, 1000.0} {
		got, err := Ln(fromFloat(v))
		require.NoError(t, err)
		assert.InDelta(t, math.Log(v), float64(got)/float64(Precision), 0.01, "ln(%v)", v)
	}
}

func TestLogSumExp(t *testing.T) {
	// ln(e^0 + e^0) = ln(2).
	got, err := LogSumExp(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, float64(Ln2), float64(got), float64(Precision)/100)

	// Symmetric in its arguments.
	a, err := LogSumExp(3*Precision, Precision)
	require.NoError(t, err)
	b, err := LogSumExp(Precision, 3*Precision)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLogSumExpStability(t *testing.T) {
	// Large but close exponents must not overflow; result stays just above
	// the maximum.
	x := 15 * Precision
	y := 14 * Precision

	got, err := LogSumExp(x, y)
	require.NoError(t, err)
	assert.Greater(t, got, x)
	assert.Less(t, got, x+2*Precision)
}
