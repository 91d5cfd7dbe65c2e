package domain

import (
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/fixedpoint"
)

// Position is a user's holding in one market. Share quantities and amounts
// are fixed-point uint64 values with nine decimals.
type Position struct {
	MarketID common.Hash
	User     common.Address

	SharesYes uint64
	SharesNo  uint64

	// TotalInvested is the cumulative amount spent on buys, including fees.
	TotalInvested uint64
	TradesCount   uint32
	LastTradeAt   *time.Time

	HasClaimed    bool
	ClaimedAmount uint64
}

// TotalShares returns the combined holding across both sides.
func (p Position) TotalShares() uint64 {
	return p.SharesYes + p.SharesNo
}

// WinningShares returns the shares that pay out under the given outcome.
// For an invalid market every share participates in the refund.
func (p Position) WinningShares(outcome Outcome) uint64 {
	switch outcome {
	case OutcomeYes:
		return p.SharesYes
	case OutcomeNo:
		return p.SharesNo
	case OutcomeInvalid:
		return p.TotalShares()
	default:
		return 0
	}
}

// AveragePrice returns the average amount paid per share across all buys,
// fees included, scaled by fixedpoint.Precision. An empty position averages
// to zero and an overflowing one saturates.
func (p Position) AveragePrice() uint64 {
	total := p.TotalShares()
	if total == 0 {
		return 0
	}
	hi, lo := bits.Mul64(p.TotalInvested, fixedpoint.Precision)
	if hi >= total {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, total)
	return q
}

// NetProfit returns claimed winnings minus total invested; negative results
// are reported as (loss, false).
func (p Position) NetProfit() (uint64, bool) {
	if p.ClaimedAmount >= p.TotalInvested {
		return p.ClaimedAmount - p.TotalInvested, true
	}
	return p.TotalInvested - p.ClaimedAmount, false
}
