package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zmart/internal/fixedpoint"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := map[MarketState][]MarketState{
		StateProposed:  {StateApproved, StateCancelled},
		StateApproved:  {StateActive, StateCancelled},
		StateActive:    {StateResolving},
		StateResolving: {StateDisputed, StateFinalized},
		StateDisputed:  {StateFinalized},
		StateFinalized: {},
		StateCancelled: {},
	}

	all := []MarketState{
		StateProposed, StateApproved, StateActive, StateResolving,
		StateDisputed, StateFinalized, StateCancelled,
	}

	for from, targets := range allowed {
		m := &Market{State: from}
		want := map[MarketState]bool{}
		for _, to := range targets {
			want[to] = true
		}
		for _, to := range all {
			assert.Equal(t, want[to], m.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestProposalApproved(t *testing.T) {
	tests := []struct {
		name            string
		likes, dislikes uint64
		threshold       uint16
		want            bool
	}{
		{"exactly at threshold", 70, 30, 7000, true},
		{"just below threshold", 6999, 3001, 7000, false},
		{"unanimous", 10, 0, 7000, true},
		{"zero votes never approve", 0, 0, 7000, false},
		{"zero votes with zero threshold", 0, 0, 0, false},
		{"all dislikes", 0, 10, 7000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Market{ProposalLikes: tt.likes, ProposalDislikes: tt.dislikes}
			assert.Equal(t, tt.want, m.ProposalApproved(tt.threshold))
		})
	}
}

func TestDisputeSucceeded(t *testing.T) {
	tests := []struct {
		name            string
		agree, disagree uint64
		threshold       uint16
		want            bool
	}{
		{"exactly at threshold", 60, 40, 6000, true},
		{"just below threshold", 5999, 4001, 6000, false},
		{"zero votes never succeed", 0, 0, 6000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Market{DisputeAgree: tt.agree, DisputeDisagree: tt.disagree}
			assert.Equal(t, tt.want, m.DisputeSucceeded(tt.threshold))
		})
	}
}

func TestDisputeWindow(t *testing.T) {
	proposed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 72 * time.Hour
	m := &Market{ResolutionProposedAt: &proposed}

	// Inside the window: dispute open, finalize blocked.
	now := proposed.Add(time.Hour)
	assert.True(t, m.CanDispute(now, window))
	assert.False(t, m.CanFinalize(now, window))

	// After the window: dispute closed, finalize open.
	now = proposed.Add(window)
	assert.False(t, m.CanDispute(now, window))
	assert.True(t, m.CanFinalize(now, window))

	// Without a proposal neither applies.
	bare := &Market{}
	assert.False(t, bare.CanDispute(now, window))
	assert.False(t, bare.CanFinalize(now, window))
}

func TestOutcomeFlip(t *testing.T) {
	assert.Equal(t, OutcomeNo, OutcomeYes.Flip())
	assert.Equal(t, OutcomeYes, OutcomeNo.Flip())
	assert.Equal(t, OutcomeInvalid, OutcomeInvalid.Flip())
	assert.Equal(t, OutcomeUnset, OutcomeUnset.Flip())
}

func TestMaxTransferable(t *testing.T) {
	assert.Equal(t, uint64(500), MaxTransferable(1500, 1000))
	assert.Zero(t, MaxTransferable(1000, 1000))
	assert.Zero(t, MaxTransferable(500, 1000))
	assert.Zero(t, MaxTransferable(0, 1000))
}

func TestGlobalConfigValidate(t *testing.T) {
	base := DefaultGlobalConfig(common.Address{1}, common.Address{2}, common.Address{3})
	require.NoError(t, base.Validate())

	over := base
	over.ProtocolFeeBps = 9000
	over.LPFeeBps = 2000
	assert.ErrorIs(t, over.Validate(), ErrInvalidFeeConfig)

	thresh := base
	thresh.ProposalThresholdBps = 10_001
	assert.ErrorIs(t, thresh.Validate(), ErrInvalidThreshold)

	window := base
	window.DisputePeriod = 0
	assert.ErrorIs(t, window.Validate(), ErrInvalidTimeLimit)
}

func TestVoteKeyUniqueness(t *testing.T) {
	market := common.HexToHash("0x01")
	other := common.HexToHash("0x02")
	voter := common.HexToAddress("0xabc")

	keys := []common.Hash{
		VoteKey(market, voter, VoteKindProposal),
		VoteKey(market, voter, VoteKindDispute),
		VoteKey(other, voter, VoteKindProposal),
	}
	seen := map[common.Hash]bool{}
	for _, k := range keys {
		assert.False(t, seen[k])
		seen[k] = true
	}
}

func TestPositionWinningShares(t *testing.T) {
	p := Position{SharesYes: 30, SharesNo: 20}
	assert.Equal(t, uint64(30), p.WinningShares(OutcomeYes))
	assert.Equal(t, uint64(20), p.WinningShares(OutcomeNo))
	assert.Equal(t, uint64(50), p.WinningShares(OutcomeInvalid))
	assert.Zero(t, p.WinningShares(OutcomeUnset))
}

func TestPositionAveragePrice(t *testing.T) {
	// 100 units spent on 200 shares averages to half the scale.
	p := Position{
		SharesYes:     150 * fixedpoint.Precision,
		SharesNo:      50 * fixedpoint.Precision,
		TotalInvested: 100 * fixedpoint.Precision,
	}
	assert.Equal(t, fixedpoint.Precision/2, p.AveragePrice())

	assert.Zero(t, Position{}.AveragePrice())
}

func TestPositionNetProfit(t *testing.T) {
	won := Position{TotalInvested: 40, ClaimedAmount: 100}
	gain, positive := won.NetProfit()
	assert.True(t, positive)
	assert.Equal(t, uint64(60), gain)

	lost := Position{TotalInvested: 40, ClaimedAmount: 10}
	loss, positive := lost.NetProfit()
	assert.False(t, positive)
	assert.Equal(t, uint64(30), loss)
}
