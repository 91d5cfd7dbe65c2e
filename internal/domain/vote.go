package domain

import (
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VoteKind distinguishes the two community voting rounds.
type VoteKind string

const (
	// VoteKindProposal is the approval round on a Proposed market.
	VoteKindProposal VoteKind = "proposal"
	// VoteKindDispute is the challenge round on a Disputed market.
	VoteKindDispute VoteKind = "dispute"
)

// VoteRecord is one voter's ballot in one round of one market. Its existence
// is the duplicate-vote guard: at most one record per (market, voter, kind).
type VoteRecord struct {
	MarketID common.Hash
	Voter    common.Address
	Kind     VoteKind
	// Approve means like for proposal votes and agree for dispute votes.
	Approve bool
	VotedAt time.Time
}

// Key derives the unique storage key for the record from its identity
// triple, keccak-hashed so records from all markets share one keyspace.
func (v VoteRecord) Key() common.Hash {
	return VoteKey(v.MarketID, v.Voter, v.Kind)
}

// VoteKey derives the storage key for a (market, voter, kind) triple.
func VoteKey(marketID common.Hash, voter common.Address, kind VoteKind) common.Hash {
	return crypto.Keccak256Hash(marketID[:], voter[:], []byte(kind))
}

// voteRateBps returns votesFor as basis points of total, 0 when total is
// zero. The product uses a 128-bit intermediate so large tallies cannot
// overflow.
func voteRateBps(votesFor, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	hi, lo := bits.Mul64(votesFor, 10_000)
	q, _ := bits.Div64(hi, lo, total)
	return q
}
