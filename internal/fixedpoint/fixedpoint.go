// Package fixedpoint implements deterministic scaled-integer arithmetic with
// nine decimal places of precision. All values are uint64 quantities scaled by
// Precision; intermediate products use 128-bit arithmetic so results are
// bit-identical across platforms. No floating point is used anywhere.
package fixedpoint

import (
	"errors"
	"math/bits"
)

// Precision is the fixed-point scale factor. A raw value of Precision
// represents 1.0.
const Precision uint64 = 1_000_000_000

// Ln2 is the natural logarithm of 2 in fixed-point representation.
const Ln2 uint64 = 693_147_180

// MaxExp is the largest exponent accepted by Exp. e^20 still fits in a uint64
// at nine decimals.
const MaxExp uint64 = 20 * Precision

var (
	// ErrOverflow is returned when a result does not fit in a uint64.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("fixedpoint: underflow")
	// ErrDivisionByZero is returned on division by zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrExponentTooLarge is returned when Exp is called beyond MaxExp.
	ErrExponentTooLarge = errors.New("fixedpoint: exponent too large")
	// ErrInvalidLogarithm is returned when Ln is called with zero.
	ErrInvalidLogarithm = errors.New("fixedpoint: logarithm of zero")
)

// Mul returns (a * b) / Precision using a 128-bit intermediate product.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= Precision {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, Precision)
	return q, nil
}

// Div returns (a * Precision) / b using a 128-bit intermediate product.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, Precision)
	if hi >= b {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, b)
	return q, nil
}

// Add returns a + b, failing on wrap-around.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b, failing when b exceeds a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Exp approximates e^x with the Pade (2,2) rational form
//
//	e^x ~ (1 + x/2 + x^2/12) / (1 - x/2 + x^2/12)
//
// for x in [0, MaxExp]. The denominator is computed as 1 + x^2/12 - x/2,
// which is strictly positive over the whole domain.
func Exp(x uint64) (uint64, error) {
	if x > MaxExp {
		return 0, ErrExponentTooLarge
	}

	x2, err := Mul(x, x)
	if err != nil {
		return 0, err
	}

	num, err := Add(Precision, x/2)
	if err != nil {
		return 0, err
	}
	num, err = Add(num, x2/12)
	if err != nil {
		return 0, err
	}

	denom, err := Add(Precision, x2/12)
	if err != nil {
		return 0, err
	}
	denom, err = Sub(denom, x/2)
	if err != nil {
		return 0, err
	}

	return Div(num, denom)
}

// ExpNeg returns e^(-x) as 1 / e^x for a non-negative exponent.
func ExpNeg(x uint64) (uint64, error) {
	ex, err := Exp(x)
	if err != nil {
		return 0, err
	}
	return Div(Precision, ex)
}

// Ln approximates the natural logarithm of x. The argument is reduced to
// [0.5, 2.0] by factoring out powers of two, then a Taylor series in
// y = (x-1)/(x+1) is summed:
//
//	ln(x) = 2*(y + y^3/3 + y^5/5) + k*ln(2)
func Ln(x uint64) (uint64, error) {
	if x == 0 {
		return 0, ErrInvalidLogarithm
	}
	if x == Precision {
		return 0, nil
	}

	reduced := x
	var k int64
	for reduced >= 2*Precision {
		reduced /= 2
		k++
	}
	for reduced < Precision/2 {
		reduced *= 2
		k--
	}

	var y uint64
	var err error
	if reduced >= Precision {
		y, err = Div(reduced-Precision, reduced+Precision)
	} else {
		var inv uint64
		inv, err = Div(Precision, reduced)
		if err != nil {
			return 0, err
		}
		y, err = Div(inv-Precision, inv+Precision)
	}
	if err != nil {
		return 0, err
	}

	y2, err := Mul(y, y)
	if err != nil {
		return 0, err
	}
	y3, err := Mul(y2, y)
	if err != nil {
		return 0, err
	}
	y5, err := Mul(y3, y2)
	if err != nil {
		return 0, err
	}

	series, err := Add(y, y3/3)
	if err != nil {
		return 0, err
	}
	series, err = Add(series, y5/5)
	if err != nil {
		return 0, err
	}
	series, err = Add(series, series)
	if err != nil {
		return 0, err
	}

	adjustment := k * int64(Ln2)
	if adjustment >= 0 {
		return Add(series, uint64(adjustment))
	}
	return Sub(series, uint64(-adjustment))
}

// LogSumExp computes ln(e^x + e^y) without overflowing by factoring out the
// larger exponent:
//
//	ln(e^x + e^y) = max(x,y) + ln(1 + e^(-|x-y|))
func LogSumExp(x, y uint64) (uint64, error) {
	maxVal, diff := x, x-y
	if y > x {
		maxVal, diff = y, y-x
	}

	expNeg, err := ExpNeg(diff)
	if err != nil {
		return 0, err
	}
	onePlus, err := Add(Precision, expNeg)
	if err != nil {
		return 0, err
	}
	lnTerm, err := Ln(onePlus)
	if err != nil {
		return 0, err
	}
	return Add(maxVal, lnTerm)
}
