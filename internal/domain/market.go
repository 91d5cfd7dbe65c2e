package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketState is the lifecycle state of a market. States form a gated
// progression; every change must pass CanTransitionTo.
type MarketState uint8

const (
	StateProposed MarketState = iota
	StateApproved
	StateActive
	StateResolving
	StateDisputed
	StateFinalized
	StateCancelled
)

// String returns the lowercase state name used in logs, events, and storage.
func (s MarketState) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateApproved:
		return "approved"
	case StateActive:
		return "active"
	case StateResolving:
		return "resolving"
	case StateDisputed:
		return "disputed"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the tri-state resolution of a binary market.
type Outcome uint8

const (
	// OutcomeUnset means no resolution has been proposed yet.
	OutcomeUnset Outcome = iota
	OutcomeYes
	OutcomeNo
	// OutcomeInvalid voids the market; all holders are refunded pro rata.
	OutcomeInvalid
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unset"
	}
}

// Flip inverts YES and NO. INVALID and unset are unchanged; a successful
// dispute cannot turn a voided market into a decided one.
func (o Outcome) Flip() Outcome {
	switch o {
	case OutcomeYes:
		return OutcomeNo
	case OutcomeNo:
		return OutcomeYes
	default:
		return o
	}
}

// MinTradeAmount is the smallest trade value accepted, in raw value units.
// Dust below this floor rounds fees to zero and bloats the books.
const MinTradeAmount uint64 = 10_000

// Market is an LMSR binary-outcome prediction market. Monetary amounts and
// share quantities are fixed-point uint64 values with nine decimals.
type Market struct {
	ID      common.Hash
	Creator common.Address
	State   MarketState

	Question     string
	EvidenceHash string // content hash of the resolution evidence document

	// LMSR parameters and inventory.
	BParameter       uint64
	InitialLiquidity uint64
	CurrentLiquidity uint64
	SharesYes        uint64
	SharesNo         uint64
	TotalVolume      uint64

	// Resolution.
	Resolver        common.Address
	ProposedOutcome Outcome
	FinalOutcome    Outcome

	// Dispute bookkeeping.
	DisputeInitiator common.Address
	WasDisputed      bool

	// Accrued fees, held in escrow while the market trades. Protocol fees
	// sweep to the fee wallet at finalization, resolver fees release with
	// the first claim, LP fees leave with the creator withdrawal.
	AccruedProtocolFees uint64
	AccruedResolverFees uint64
	AccruedLPFees       uint64

	// Vote tallies, updated by aggregation.
	ProposalLikes    uint64
	ProposalDislikes uint64
	DisputeAgree     uint64
	DisputeDisagree  uint64

	// Lifecycle timestamps. Optional ones are nil until the state is reached.
	CreatedAt            time.Time
	ApprovedAt           *time.Time
	ActivatedAt          *time.Time
	ResolutionProposedAt *time.Time
	DisputedAt           *time.Time
	FinalizedAt          *time.Time
	CancelledAt          *time.Time
}

// CanTransitionTo reports whether the lifecycle permits moving to the target
// state. This is the single source of truth for the state graph; callers
// still enforce their own guards (authorization, timing, vote thresholds).
func (m *Market) CanTransitionTo(to MarketState) bool {
	switch m.State {
	case StateProposed:
		return to == StateApproved || to == StateCancelled
	case StateApproved:
		return to == StateActive || to == StateCancelled
	case StateActive:
		return to == StateResolving
	case StateResolving:
		return to == StateDisputed || to == StateFinalized
	case StateDisputed:
		return to == StateFinalized
	default:
		// Finalized and Cancelled are terminal.
		return false
	}
}

// ProposalApproved reports whether accumulated proposal votes clear the
// approval threshold. Zero votes never approve.
func (m *Market) ProposalApproved(thresholdBps uint16) bool {
	return voteRateBps(m.ProposalLikes, m.ProposalLikes+m.ProposalDislikes) >= uint64(thresholdBps) &&
		m.ProposalLikes+m.ProposalDislikes > 0
}

// DisputeSucceeded reports whether accumulated dispute votes clear the
// dispute threshold. Zero votes never succeed.
func (m *Market) DisputeSucceeded(thresholdBps uint16) bool {
	return voteRateBps(m.DisputeAgree, m.DisputeAgree+m.DisputeDisagree) >= uint64(thresholdBps) &&
		m.DisputeAgree+m.DisputeDisagree > 0
}

// CanFinalize reports whether the dispute window following the resolution
// proposal has fully elapsed.
func (m *Market) CanFinalize(now time.Time, disputePeriod time.Duration) bool {
	if m.ResolutionProposedAt == nil {
		return false
	}
	return !now.Before(m.ResolutionProposedAt.Add(disputePeriod))
}

// CanDispute reports whether a dispute can still be opened: a resolution has
// been proposed and the dispute window has not yet closed.
func (m *Market) CanDispute(now time.Time, disputePeriod time.Duration) bool {
	if m.ResolutionProposedAt == nil {
		return false
	}
	return now.After(*m.ResolutionProposedAt) &&
		now.Before(m.ResolutionProposedAt.Add(disputePeriod))
}
