package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
	"github.com/alanyoungcy/zmart/internal/lmsr"
)

// treasuryReserve is the floor balance an escrow account keeps after a
// creator withdrawal, so the account never empties completely while claims
// may still arrive.
const treasuryReserve uint64 = 10_000

// MarketService drives the market lifecycle: creation, approval, activation,
// resolution, dispute, finalization, cancellation, and the creator's final
// liquidity withdrawal.
type MarketService struct {
	markets  domain.MarketStore
	config   domain.ConfigStore
	treasury domain.Treasury
	locks    domain.LockManager
	prices   domain.PriceCache
	emitter
	now func() time.Time
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	config domain.ConfigStore,
	treasury domain.Treasury,
	locks domain.LockManager,
	prices domain.PriceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		config:   config,
		treasury: treasury,
		locks:    locks,
		prices:   prices,
		emitter:  emitter{bus: bus, audit: audit, logger: logger},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateMarket opens a new market in the Proposed state. The creator funds
// the escrow with the initial liquidity. Any positive amount is accepted;
// sells are capped by the current liquidity and the bounded-loss check runs
// on every trade and at finalization.
func (s *MarketService) CreateMarket(
	ctx context.Context,
	id common.Hash,
	creator common.Address,
	question string,
	bParameter uint64,
	initialLiquidity uint64,
	evidenceHash string,
) (domain.Market, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: load config: %w", err)
	}
	if cfg.Paused {
		return domain.Market{}, domain.ErrProtocolPaused
	}

	if id == (common.Hash{}) {
		return domain.Market{}, domain.ErrInvalidMarketID
	}
	if bParameter < lmsr.MinB {
		return domain.Market{}, domain.ErrInvalidBParameter
	}
	if initialLiquidity == 0 {
		return domain.Market{}, domain.ErrZeroAmount
	}

	now := s.now()
	market := domain.Market{
		ID:               id,
		Creator:          creator,
		State:            domain.StateProposed,
		Question:         question,
		EvidenceHash:     evidenceHash,
		BParameter:       bParameter,
		InitialLiquidity: initialLiquidity,
		CurrentLiquidity: initialLiquidity,
		CreatedAt:        now,
	}

	if err := s.treasury.Transfer(ctx, creator, domain.EscrowAddress(id), initialLiquidity); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: fund escrow: %w", err)
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	s.cachePrices(ctx, market)

	s.emit(ctx, domain.EventMarketCreated, id, now, map[string]any{
		"creator":           creator.Hex(),
		"b_parameter":       bParameter,
		"initial_liquidity": initialLiquidity,
	})
	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market", id.Hex()),
		slog.Uint64("b_parameter", bParameter),
		slog.Uint64("initial_liquidity", initialLiquidity),
	)
	return market, nil
}

// ApproveProposal moves a Proposed market to Approved once its aggregated
// proposal votes clear the approval threshold.
func (s *MarketService) ApproveProposal(ctx context.Context, id common.Hash) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load config: %w", err)
	}
	if cfg.Paused {
		return domain.ErrProtocolPaused
	}

	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if !market.CanTransitionTo(domain.StateApproved) {
		return domain.ErrInvalidTransition
	}
	if market.ProposalLikes+market.ProposalDislikes == 0 {
		return domain.ErrNoVotesRecorded
	}
	if !market.ProposalApproved(cfg.ProposalThresholdBps) {
		return domain.ErrThresholdNotMet
	}

	now := s.now()
	if err := checkClock(&market, now); err != nil {
		return err
	}
	market.State = domain.StateApproved
	market.ApprovedAt = &now

	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventMarketApproved, id, now, map[string]any{
		"likes":    market.ProposalLikes,
		"dislikes": market.ProposalDislikes,
	})
	return nil
}

// ActivateMarket opens an Approved market for trading. Only the admin or the
// market creator may activate, and the escrowed liquidity must still cover
// the initial commitment.
func (s *MarketService) ActivateMarket(ctx context.Context, caller common.Address, id common.Hash) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load config: %w", err)
	}
	if cfg.Paused {
		return domain.ErrProtocolPaused
	}

	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if caller != cfg.Admin && caller != market.Creator {
		return domain.ErrUnauthorized
	}
	if !market.CanTransitionTo(domain.StateActive) {
		return domain.ErrInvalidTransition
	}
	if market.CurrentLiquidity < market.InitialLiquidity {
		return domain.ErrInsufficientLiquidity
	}

	now := s.now()
	if err := checkClock(&market, now); err != nil {
		return err
	}
	market.State = domain.StateActive
	market.ActivatedAt = &now

	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventMarketActivated, id, now, nil)
	s.logger.InfoContext(ctx, "market_service: market activated",
		slog.String("market", id.Hex()),
	)
	return nil
}

// CancelMarket terminates a market before trading starts. Admin only;
// reachable from Proposed and Approved, irreversible. The escrowed
// liquidity stays claimable by the creator through WithdrawLiquidity.
func (s *MarketService) CancelMarket(ctx context.Context, caller common.Address, id common.Hash) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load config: %w", err)
	}
	if caller != cfg.Admin {
		return domain.ErrUnauthorized
	}

	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if !market.CanTransitionTo(domain.StateCancelled) {
		return domain.ErrInvalidTransition
	}

	now := s.now()
	if err := checkClock(&market, now); err != nil {
		return err
	}
	market.State = domain.StateCancelled
	market.CancelledAt = &now

	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventMarketCancelled, id, now, nil)
	return nil
}

// ResolveMarket records a proposed outcome and moves the market to
// Resolving. One-shot: a second proposal for the same market fails. The
// caller becomes the resolver of record and earns the accrued resolver fees
// once the market finalizes.
func (s *MarketService) ResolveMarket(
	ctx context.Context,
	resolver common.Address,
	id common.Hash,
	outcome domain.Outcome,
	evidenceHash string,
) error {
	if outcome == domain.OutcomeUnset {
		return domain.ErrInvalidOutcome
	}
	if evidenceHash == "" {
		return domain.ErrInvalidEvidence
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load config: %w", err)
	}
	if cfg.Paused {
		return domain.ErrProtocolPaused
	}

	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if !market.CanTransitionTo(domain.StateResolving) {
		return domain.ErrInvalidTransition
	}
	if market.ProposedOutcome != domain.OutcomeUnset {
		return domain.ErrAlreadyResolved
	}

	now := s.now()
	if err := checkClock(&market, now); err != nil {
		return err
	}
	if market.ActivatedAt == nil || now.Before(market.ActivatedAt.Add(cfg.MinResolutionDelay)) {
		return domain.ErrResolutionTooEarly
	}

	market.State = domain.StateResolving
	market.Resolver = resolver
	market.ProposedOutcome = outcome
	market.EvidenceHash = evidenceHash
	market.ResolutionProposedAt = &now

	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventMarketResolved, id, now, map[string]any{
		"resolver": resolver.Hex(),
		"outcome":  outcome.String(),
		"evidence": evidenceHash,
	})
	s.logger.InfoContext(ctx, "market_service: resolution proposed",
		slog.String("market", id.Hex()),
		slog.String("outcome", outcome.String()),
	)
	return nil
}

// InitiateDispute challenges a proposed resolution inside the dispute
// window, resetting the dispute tallies and opening the dispute vote round.
func (s *MarketService) InitiateDispute(ctx context.Context, initiator common.Address, id common.Hash) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load config: %w", err)
	}
	if cfg.Paused {
		return domain.ErrProtocolPaused
	}

	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if !market.CanTransitionTo(domain.StateDisputed) {
		return domain.ErrInvalidTransition
	}
	if market.ProposedOutcome == domain.OutcomeUnset {
		return domain.ErrNoResolutionProposed
	}

	now := s.now()
	if market.ResolutionProposedAt == nil || !now.After(*market.ResolutionProposedAt) {
		return domain.ErrInvalidTimestamp
	}
	if !market.CanDispute(now, cfg.DisputePeriod) {
		return domain.ErrDisputeWindowClosed
	}

	market.State = domain.StateDisputed
	market.DisputeInitiator = initiator
	market.WasDisputed = true
	market.DisputedAt = &now
	// Fresh dispute round: old tallies never carry over.
	market.DisputeAgree = 0
	market.DisputeDisagree = 0

	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventMarketDisputed, id, now, map[string]any{
		"initiator": initiator.Hex(),
		"disputed":  market.ProposedOutcome.String(),
	})
	return nil
}

// FinalizeMarket settles the market outcome. From Resolving it requires the
// dispute window to have elapsed and keeps the proposed outcome. From
// Disputed it evaluates the dispute tallies: at or above the threshold the
// outcome flips, below it the proposal stands. Either path verifies the
// bounded-loss guarantee before committing, then sweeps the accrued
// protocol fees from escrow to the fee wallet.
func (s *MarketService) FinalizeMarket(ctx context.Context, id common.Hash) (domain.Outcome, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return domain.OutcomeUnset, fmt.Errorf("market_service: load config: %w", err)
	}

	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.OutcomeUnset, fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if !market.CanTransitionTo(domain.StateFinalized) {
		return domain.OutcomeUnset, domain.ErrInvalidTransition
	}
	if market.ProposedOutcome == domain.OutcomeUnset {
		return domain.OutcomeUnset, domain.ErrNoResolutionProposed
	}

	now := s.now()
	if err := checkClock(&market, now); err != nil {
		return domain.OutcomeUnset, err
	}

	final := market.ProposedOutcome
	flipped := false
	switch market.State {
	case domain.StateResolving:
		if !market.CanFinalize(now, cfg.DisputePeriod) {
			return domain.OutcomeUnset, domain.ErrDisputeWindowOpen
		}
	case domain.StateDisputed:
		if market.DisputeSucceeded(cfg.DisputeThresholdBps) {
			final = final.Flip()
			flipped = final != market.ProposedOutcome
		}
	}

	if err := lmsr.VerifyBoundedLoss(market.InitialLiquidity, market.CurrentLiquidity, market.BParameter); err != nil {
		return domain.OutcomeUnset, fmt.Errorf("market_service: finalize %s: %w", id.Hex(), err)
	}

	protocolFees := market.AccruedProtocolFees
	if protocolFees > 0 {
		if err := s.treasury.Transfer(ctx, domain.EscrowAddress(id), cfg.ProtocolFeeWallet, protocolFees); err != nil {
			return domain.OutcomeUnset, fmt.Errorf("market_service: sweep protocol fees %s: %w", id.Hex(), err)
		}
		market.AccruedProtocolFees = 0
	}

	market.State = domain.StateFinalized
	market.FinalOutcome = final
	market.FinalizedAt = &now

	if err := s.markets.Update(ctx, market); err != nil {
		return domain.OutcomeUnset, fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventMarketFinalized, id, now, map[string]any{
		"outcome":       final.String(),
		"disputed":      market.WasDisputed,
		"flipped":       flipped,
		"protocol_fees": protocolFees,
	})
	s.logger.InfoContext(ctx, "market_service: market finalized",
		slog.String("market", id.Hex()),
		slog.String("outcome", final.String()),
		slog.Bool("flipped", flipped),
	)
	return final, nil
}

// WithdrawLiquidity pays the remaining escrow, less the reserve floor, back
// to the market creator after finalization or cancellation. A balance at or
// below the floor withdraws zero without error.
func (s *MarketService) WithdrawLiquidity(ctx context.Context, caller common.Address, id common.Hash) (uint64, error) {
	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	if market.State != domain.StateFinalized && market.State != domain.StateCancelled {
		return 0, domain.ErrInvalidState
	}
	if caller != market.Creator {
		return 0, domain.ErrUnauthorized
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(id), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("market_service: lock market %s: %w", id.Hex(), err)
	}
	defer unlock()

	escrow := domain.EscrowAddress(id)
	balance, err := s.treasury.Balance(ctx, escrow)
	if err != nil {
		return 0, fmt.Errorf("market_service: escrow balance %s: %w", id.Hex(), err)
	}

	amount := domain.MaxTransferable(balance, treasuryReserve)
	if amount == 0 {
		return 0, nil
	}

	if err := s.treasury.Transfer(ctx, escrow, caller, amount); err != nil {
		return 0, fmt.Errorf("market_service: withdraw transfer %s: %w", id.Hex(), err)
	}

	market.CurrentLiquidity = 0
	market.AccruedLPFees = 0
	if err := s.markets.Update(ctx, market); err != nil {
		return 0, fmt.Errorf("market_service: update market %s: %w", id.Hex(), err)
	}

	s.emit(ctx, domain.EventLiquidityWithdraw, id, s.now(), map[string]any{
		"creator": caller.Hex(),
		"amount":  amount,
	})
	return amount, nil
}

// GetMarket returns a market by id.
func (s *MarketService) GetMarket(ctx context.Context, id common.Hash) (domain.Market, error) {
	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	return market, nil
}

// ListMarkets returns markets, optionally filtered by state.
func (s *MarketService) ListMarkets(ctx context.Context, state *domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	var (
		markets []domain.Market
		err     error
	)
	if state != nil {
		markets, err = s.markets.ListByState(ctx, *state, opts)
	} else {
		markets, err = s.markets.List(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// Prices returns the instantaneous LMSR prices for a market.
func (s *MarketService) Prices(ctx context.Context, id common.Hash) (yes, no uint64, err error) {
	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return 0, 0, fmt.Errorf("market_service: get market %s: %w", id.Hex(), err)
	}
	yes, err = lmsr.YesPrice(market.SharesYes, market.SharesNo, market.BParameter)
	if err != nil {
		return 0, 0, fmt.Errorf("market_service: yes price %s: %w", id.Hex(), err)
	}
	no, err = lmsr.NoPrice(market.SharesYes, market.SharesNo, market.BParameter)
	if err != nil {
		return 0, 0, fmt.Errorf("market_service: no price %s: %w", id.Hex(), err)
	}
	return yes, no, nil
}

// cachePrices refreshes the cached prices for a market, logging on failure.
func (s *MarketService) cachePrices(ctx context.Context, market domain.Market) {
	yes, err := lmsr.YesPrice(market.SharesYes, market.SharesNo, market.BParameter)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: price computation failed",
			slog.String("market", market.ID.Hex()),
			slog.String("error", err.Error()),
		)
		return
	}
	no, err := lmsr.NoPrice(market.SharesYes, market.SharesNo, market.BParameter)
	if err != nil {
		return
	}
	if cacheErr := s.prices.SetPrices(ctx, market.ID, yes, no, s.now()); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: price cache update failed",
			slog.String("market", market.ID.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}
}
