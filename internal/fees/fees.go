// Package fees splits trading fees between the protocol, the resolver, and
// liquidity providers without leaking value to rounding.
//
// Naive per-component percentages truncate independently, so the parts can
// sum to less than the whole and the difference vanishes from the books.
// Split instead divides once to get the total fee, derives the protocol and
// resolver shares proportionally, and assigns the liquidity provider share by
// subtraction. The components therefore always sum to the total exactly.
package fees

import (
	"errors"
	"math/bits"
)

// bpsDenominator converts basis points to a fraction. 100 bps = 1%.
const bpsDenominator = 10_000

// ErrFeeOverflow is returned when the fee computation would overflow.
var ErrFeeOverflow = errors.New("fees: overflow")

// Breakdown is the result of splitting a fee across its recipients.
// ProtocolFee + ResolverFee + LPFee == TotalFees holds for every input.
type Breakdown struct {
	ProtocolFee uint64
	ResolverFee uint64
	LPFee       uint64
	TotalFees   uint64
}

// Split computes the fee taken from amount at the given basis-point rates.
// All-zero rates produce a zero breakdown.
func Split(amount uint64, protocolBps, resolverBps, lpBps uint16) (Breakdown, error) {
	totalBps := uint64(protocolBps) + uint64(resolverBps) + uint64(lpBps)
	if totalBps == 0 {
		return Breakdown{}, nil
	}

	// Single division point for the total.
	total, err := mulDiv(amount, totalBps, bpsDenominator)
	if err != nil {
		return Breakdown{}, err
	}

	protocol, err := mulDiv(total, uint64(protocolBps), totalBps)
	if err != nil {
		return Breakdown{}, err
	}
	resolver, err := mulDiv(total, uint64(resolverBps), totalBps)
	if err != nil {
		return Breakdown{}, err
	}

	// LP share is the remainder, so the sum is exact.
	lp := total - protocol - resolver

	return Breakdown{
		ProtocolFee: protocol,
		ResolverFee: resolver,
		LPFee:       lp,
		TotalFees:   total,
	}, nil
}

// EnforceMinimum raises fee to floor when it falls short. Used to keep dust
// trades from rounding their fee to zero.
func EnforceMinimum(fee, floor uint64) uint64 {
	if fee < floor {
		return floor
	}
	return fee
}

// mulDiv returns a*b/c with a 128-bit intermediate product.
func mulDiv(a, b, c uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrFeeOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}
