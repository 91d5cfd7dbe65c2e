package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zmart/internal/domain"
	"github.com/alanyoungcy/zmart/internal/fixedpoint"
)

var (
	testCreator  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	testResolver = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	testAlice    = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	testBob      = common.HexToAddress("0x0000000000000000000000000000000000000e02")
)

const (
	testB         = 1000 * fixedpoint.Precision
	testLiquidity = 1000 * fixedpoint.Precision
)

func testMarketID(n byte) common.Hash {
	var id common.Hash
	id[31] = n
	return id
}

// createActiveMarket walks a fresh market through proposal, approval, and
// activation, returning its id.
func createActiveMarket(t *testing.T, env *testEnv) common.Hash {
	t.Helper()
	ctx := context.Background()
	id := testMarketID(1)

	env.fund(testCreator, 2*testLiquidity)
	_, err := env.marketSvc.CreateMarket(ctx, id, testCreator,
		"Will it rain in Lisbon on 2026-06-01?", testB, testLiquidity, "")
	require.NoError(t, err)

	approved, err := env.voteSvc.AggregateProposalVotes(ctx, testBackend, id, 7, 3)
	require.NoError(t, err)
	require.True(t, approved)

	env.advance(time.Hour)
	require.NoError(t, env.marketSvc.ActivateMarket(ctx, testCreator, id))
	return id
}

func TestMarketLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	market, err := env.marketSvc.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, market.State)
	require.NotNil(t, market.ActivatedAt)

	// Opening prices are even.
	yes, no, err := env.marketSvc.Prices(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(fixedpoint.Precision/2), yes)
	assert.Equal(t, uint64(fixedpoint.Precision), yes+no)

	env.fund(testAlice, 100*fixedpoint.Precision)
	env.fund(testBob, 100*fixedpoint.Precision)

	buyA, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	require.NoError(t, err)
	assert.NotZero(t, buyA.Shares)
	assert.LessOrEqual(t, buyA.Total, uint64(50*fixedpoint.Precision))
	assert.Greater(t, buyA.YesPrice, uint64(fixedpoint.Precision/2))

	buyB, err := env.tradeSvc.BuyShares(ctx, testBob, id, domain.OutcomeNo, 30*fixedpoint.Precision)
	require.NoError(t, err)
	assert.NotZero(t, buyB.Shares)
	assert.Equal(t, uint64(fixedpoint.Precision), buyB.YesPrice+buyB.NoPrice)

	// Resolution is gated on the minimum delay after activation.
	err = env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence")
	assert.ErrorIs(t, err, domain.ErrResolutionTooEarly)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))

	// A second proposal is rejected.
	market, _ = env.marketSvc.GetMarket(ctx, id)
	assert.Equal(t, domain.StateResolving, market.State)

	// Finalize must wait out the dispute window.
	_, err = env.marketSvc.FinalizeMarket(ctx, id)
	assert.ErrorIs(t, err, domain.ErrDisputeWindowOpen)

	env.advance(73 * time.Hour)
	final, err := env.marketSvc.FinalizeMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, final)

	market, _ = env.marketSvc.GetMarket(ctx, id)
	pool := market.CurrentLiquidity
	resolverFees := market.AccruedResolverFees
	require.NotZero(t, resolverFees)

	// Alice holds all YES shares and takes the whole pool.
	payout, err := env.positionSvc.ClaimWinnings(ctx, testAlice, id)
	require.NoError(t, err)
	assert.Equal(t, pool, payout)

	resolverBalance, _ := env.treasury.Balance(ctx, testResolver)
	assert.Equal(t, resolverFees, resolverBalance)

	// Bob held NO and gets nothing.
	_, err = env.positionSvc.ClaimWinnings(ctx, testBob, id)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)

	// Claiming twice is rejected and pays nothing extra.
	_, err = env.positionSvc.ClaimWinnings(ctx, testAlice, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// The creator sweeps the leftover fees, less the reserve floor.
	withdrawn, err := env.marketSvc.WithdrawLiquidity(ctx, testCreator, id)
	require.NoError(t, err)
	escrowBalance, _ := env.treasury.Balance(ctx, domain.EscrowAddress(id))
	assert.Equal(t, treasuryReserve, escrowBalance)
	assert.NotZero(t, withdrawn)
}

func TestCreateMarketValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.fund(testCreator, 10*testLiquidity)

	_, err := env.marketSvc.CreateMarket(ctx, common.Hash{}, testCreator, "q", testB, testLiquidity, "")
	assert.ErrorIs(t, err, domain.ErrInvalidMarketID)

	_, err = env.marketSvc.CreateMarket(ctx, testMarketID(2), testCreator, "q",
		50*fixedpoint.Precision, testLiquidity, "")
	assert.ErrorIs(t, err, domain.ErrInvalidBParameter)

	_, err = env.marketSvc.CreateMarket(ctx, testMarketID(2), testCreator, "q", testB, 0, "")
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

// A market may open with far less liquidity than the b*ln(2) worst case; the
// per-trade bounded-loss check and the sell cap carry the risk instead.
func TestSmallLiquidityMarketLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := testMarketID(8)

	env.fund(testCreator, 20*fixedpoint.Precision)
	_, err := env.marketSvc.CreateMarket(ctx, id, testCreator, "q",
		1000*fixedpoint.Precision, 10*fixedpoint.Precision, "")
	require.NoError(t, err)

	approved, err := env.voteSvc.AggregateProposalVotes(ctx, testBackend, id, 8, 2)
	require.NoError(t, err)
	require.True(t, approved)

	env.advance(time.Hour)
	require.NoError(t, env.marketSvc.ActivateMarket(ctx, testCreator, id))

	env.fund(testAlice, 10*fixedpoint.Precision)
	env.fund(testBob, 10*fixedpoint.Precision)

	buy, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, fixedpoint.Precision)
	require.NoError(t, err)
	require.NotZero(t, buy.Shares)

	sell, err := env.tradeSvc.SellShares(ctx, testAlice, id, domain.OutcomeYes, buy.Shares, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, sell.Cost, buy.Cost)

	// Bob holds his YES shares through settlement.
	_, err = env.tradeSvc.BuyShares(ctx, testBob, id, domain.OutcomeYes, fixedpoint.Precision)
	require.NoError(t, err)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))
	env.advance(73 * time.Hour)
	final, err := env.marketSvc.FinalizeMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, final)

	market, _ := env.marketSvc.GetMarket(ctx, id)
	pool := market.CurrentLiquidity

	payout, err := env.positionSvc.ClaimWinnings(ctx, testBob, id)
	require.NoError(t, err)
	assert.Equal(t, pool, payout)

	_, err = env.positionSvc.ClaimWinnings(ctx, testAlice, id)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)
}

func TestProposalThresholdEdge(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.fund(testCreator, 2*testLiquidity)
	id := testMarketID(3)
	_, err := env.marketSvc.CreateMarket(ctx, id, testCreator, "q", testB, testLiquidity, "")
	require.NoError(t, err)

	// 6999 of 10000 basis points falls just short of the 7000 threshold.
	approved, err := env.voteSvc.AggregateProposalVotes(ctx, testBackend, id, 6999, 3001)
	require.NoError(t, err)
	assert.False(t, approved)

	market, _ := env.marketSvc.GetMarket(ctx, id)
	assert.Equal(t, domain.StateProposed, market.State)

	// Exactly at the threshold passes.
	approved, err = env.voteSvc.AggregateProposalVotes(ctx, testBackend, id, 7000, 3000)
	require.NoError(t, err)
	assert.True(t, approved)

	market, _ = env.marketSvc.GetMarket(ctx, id)
	assert.Equal(t, domain.StateApproved, market.State)
}

func TestAggregateRequiresAuthority(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.fund(testCreator, 2*testLiquidity)
	id := testMarketID(4)
	_, err := env.marketSvc.CreateMarket(ctx, id, testCreator, "q", testB, testLiquidity, "")
	require.NoError(t, err)

	_, err = env.voteSvc.AggregateProposalVotes(ctx, testAlice, id, 10, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// The admin can aggregate too.
	_, err = env.voteSvc.AggregateProposalVotes(ctx, testAdmin, id, 10, 0)
	assert.NoError(t, err)
}

func TestDuplicateVoteRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.fund(testCreator, 2*testLiquidity)
	id := testMarketID(5)
	_, err := env.marketSvc.CreateMarket(ctx, id, testCreator, "q", testB, testLiquidity, "")
	require.NoError(t, err)

	require.NoError(t, env.voteSvc.SubmitProposalVote(ctx, testAlice, id, true))
	err = env.voteSvc.SubmitProposalVote(ctx, testAlice, id, false)
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)

	approve, reject, err := env.voteSvc.Tally(ctx, id, domain.VoteKindProposal)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), approve)
	assert.Zero(t, reject)
}

func TestDisputeFlipsOutcome(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))

	env.advance(time.Hour)
	require.NoError(t, env.marketSvc.InitiateDispute(ctx, testBob, id))

	require.NoError(t, env.voteSvc.AggregateDisputeVotes(ctx, testBackend, id, 6, 4))

	final, err := env.marketSvc.FinalizeMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNo, final)

	market, _ := env.marketSvc.GetMarket(ctx, id)
	assert.True(t, market.WasDisputed)
	assert.Equal(t, testBob, market.DisputeInitiator)
}

func TestDisputeBelowThresholdKeepsOutcome(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))

	env.advance(time.Hour)
	require.NoError(t, env.marketSvc.InitiateDispute(ctx, testBob, id))

	// 5999 of 10000 falls just short of the 6000 dispute threshold.
	require.NoError(t, env.voteSvc.AggregateDisputeVotes(ctx, testBackend, id, 5999, 4001))

	final, err := env.marketSvc.FinalizeMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, final)
}

func TestDisputeWindowCloses(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))

	env.advance(73 * time.Hour)
	err := env.marketSvc.InitiateDispute(ctx, testBob, id)
	assert.ErrorIs(t, err, domain.ErrDisputeWindowClosed)
}

func TestInvalidOutcomeRefundsEveryone(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.fund(testAlice, 100*fixedpoint.Precision)
	env.fund(testBob, 100*fixedpoint.Precision)
	_, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 40*fixedpoint.Precision)
	require.NoError(t, err)
	_, err = env.tradeSvc.BuyShares(ctx, testBob, id, domain.OutcomeNo, 40*fixedpoint.Precision)
	require.NoError(t, err)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeInvalid, "bafy-evidence"))
	env.advance(73 * time.Hour)
	final, err := env.marketSvc.FinalizeMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInvalid, final)

	payoutA, err := env.positionSvc.ClaimWinnings(ctx, testAlice, id)
	require.NoError(t, err)
	payoutB, err := env.positionSvc.ClaimWinnings(ctx, testBob, id)
	require.NoError(t, err)
	assert.NotZero(t, payoutA)
	assert.NotZero(t, payoutB)

	market, _ := env.marketSvc.GetMarket(ctx, id)
	assert.LessOrEqual(t, payoutA+payoutB, market.CurrentLiquidity)
}

func TestSellRoundTrip(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.fund(testAlice, 100*fixedpoint.Precision)
	buy, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	require.NoError(t, err)

	sell, err := env.tradeSvc.SellShares(ctx, testAlice, id, domain.OutcomeYes, buy.Shares, 0)
	require.NoError(t, err)

	// A round trip never profits: proceeds stay at or below the buy cost.
	assert.LessOrEqual(t, sell.Cost, buy.Cost)

	pos, err := env.positionSvc.GetPosition(ctx, id, testAlice)
	require.NoError(t, err)
	assert.Zero(t, pos.SharesYes)
	assert.Equal(t, uint32(2), pos.TradesCount)
}

func TestSellGuards(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.fund(testAlice, 100*fixedpoint.Precision)
	buy, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	require.NoError(t, err)

	_, err = env.tradeSvc.SellShares(ctx, testAlice, id, domain.OutcomeYes, buy.Shares+1, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = env.tradeSvc.SellShares(ctx, testAlice, id, domain.OutcomeNo, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	// A sky-high floor trips the slippage guard.
	_, err = env.tradeSvc.SellShares(ctx, testAlice, id, domain.OutcomeYes, buy.Shares,
		1000*fixedpoint.Precision)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestBuyGuards(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)
	env.fund(testAlice, 100*fixedpoint.Precision)

	_, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeInvalid, 50*fixedpoint.Precision)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, domain.MinTradeAmount-1)
	assert.ErrorIs(t, err, domain.ErrTradeTooSmall)
}

func TestPauseBlocksTrading(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)
	env.fund(testAlice, 100*fixedpoint.Precision)

	require.NoError(t, env.configSvc.SetPaused(ctx, testAdmin, true))

	_, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	assert.ErrorIs(t, err, domain.ErrProtocolPaused)

	_, err = env.marketSvc.CreateMarket(ctx, testMarketID(9), testCreator, "q", testB, testLiquidity, "")
	assert.ErrorIs(t, err, domain.ErrProtocolPaused)

	require.NoError(t, env.configSvc.SetPaused(ctx, testBackend, false))
	_, err = env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	assert.NoError(t, err)
}

func TestConfigUpdateRequiresAdmin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	cfg, err := env.configSvc.Get(ctx)
	require.NoError(t, err)
	cfg.ProtocolFeeBps = 100

	err = env.configSvc.UpdateGlobalConfig(ctx, testAlice, cfg)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.configSvc.UpdateGlobalConfig(ctx, testAdmin, cfg))
	got, err := env.configSvc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), got.ProtocolFeeBps)

	// Invalid configs never land.
	cfg.ProtocolFeeBps = 9000
	cfg.LPFeeBps = 9000
	err = env.configSvc.UpdateGlobalConfig(ctx, testAdmin, cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidFeeConfig)
}

func TestCancelAndWithdraw(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.fund(testCreator, 2*testLiquidity)
	id := testMarketID(6)
	_, err := env.marketSvc.CreateMarket(ctx, id, testCreator, "q", testB, testLiquidity, "")
	require.NoError(t, err)

	err = env.marketSvc.CancelMarket(ctx, testAlice, id)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.marketSvc.CancelMarket(ctx, testAdmin, id))

	// Only the creator withdraws.
	_, err = env.marketSvc.WithdrawLiquidity(ctx, testAlice, id)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	withdrawn, err := env.marketSvc.WithdrawLiquidity(ctx, testCreator, id)
	require.NoError(t, err)
	assert.Equal(t, testLiquidity-treasuryReserve, withdrawn)

	// A drained escrow withdraws zero without error.
	withdrawn, err = env.marketSvc.WithdrawLiquidity(ctx, testCreator, id)
	require.NoError(t, err)
	assert.Zero(t, withdrawn)
}

func TestWithdrawBeforeSettlement(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	_, err := env.marketSvc.WithdrawLiquidity(ctx, testCreator, id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestHeldLockBlocksTrade(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)
	env.fund(testAlice, 100*fixedpoint.Precision)

	unlock, err := env.locks.Acquire(ctx, lockKey(id), lockTTL)
	require.NoError(t, err)

	_, err = env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	_, err = env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	assert.NoError(t, err)
}

func TestProtocolFeesSweepAtFinalize(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)
	env.fund(testAlice, 100*fixedpoint.Precision)

	buy, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	require.NoError(t, err)
	require.NotZero(t, buy.Fees.ProtocolFee)

	// Fees stay in escrow while the market trades.
	market, _ := env.marketSvc.GetMarket(ctx, id)
	assert.Equal(t, buy.Fees.ProtocolFee, market.AccruedProtocolFees)
	walletBalance, _ := env.treasury.Balance(ctx, testWallet)
	assert.Zero(t, walletBalance)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))
	env.advance(73 * time.Hour)
	_, err = env.marketSvc.FinalizeMarket(ctx, id)
	require.NoError(t, err)

	walletBalance, _ = env.treasury.Balance(ctx, testWallet)
	assert.Equal(t, buy.Fees.ProtocolFee, walletBalance)

	market, _ = env.marketSvc.GetMarket(ctx, id)
	assert.Zero(t, market.AccruedProtocolFees)
}

func TestTradeEventsEmitted(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)
	env.fund(testAlice, 100*fixedpoint.Precision)

	before := len(env.bus.published)
	_, err := env.tradeSvc.BuyShares(ctx, testAlice, id, domain.OutcomeYes, 50*fixedpoint.Precision)
	require.NoError(t, err)

	assert.Greater(t, len(env.bus.published), before)
	assert.Equal(t, len(env.bus.published), len(env.bus.stream))
	assert.NotEmpty(t, env.audit.entries)
}

func TestClockNeverRunsBackwards(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := createActiveMarket(t, env)

	env.advance(25 * time.Hour)
	require.NoError(t, env.marketSvc.ResolveMarket(ctx, testResolver, id, domain.OutcomeYes, "bafy-evidence"))

	// Rewind to before the resolution stamp; finalize must refuse.
	env.advance(-10 * time.Hour)
	_, err := env.marketSvc.FinalizeMarket(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)
}
