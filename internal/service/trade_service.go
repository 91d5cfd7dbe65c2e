package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
	"github.com/alanyoungcy/zmart/internal/fees"
	"github.com/alanyoungcy/zmart/internal/lmsr"
)

// TradeResult summarizes an executed trade.
type TradeResult struct {
	Shares   uint64
	Cost     uint64 // LMSR cost or proceeds, before fees
	Fees     fees.Breakdown
	Total    uint64 // amount charged (buy) or paid out (sell), fee-inclusive
	YesPrice uint64
	NoPrice  uint64
}

// TradeService executes buys and sells against the LMSR curve. Both paths
// hold the per-market lock across their value transfers. Fees accrue on the
// market and stay in escrow until settlement pays them out.
type TradeService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	config    domain.ConfigStore
	treasury  domain.Treasury
	locks     domain.LockManager
	prices    domain.PriceCache
	emitter
	now func() time.Time
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	config domain.ConfigStore,
	treasury domain.Treasury,
	locks domain.LockManager,
	prices domain.PriceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:   markets,
		positions: positions,
		config:    config,
		treasury:  treasury,
		locks:     locks,
		prices:    prices,
		emitter:   emitter{bus: bus, audit: audit, logger: logger},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// BuyShares spends up to targetCost buying shares of one side. Part of the
// budget is reserved for fees, the remainder drives the share solver, and
// the fee actually charged is computed on the realized cost, so the total
// charge never exceeds targetCost.
func (s *TradeService) BuyShares(
	ctx context.Context,
	user common.Address,
	marketID common.Hash,
	outcome domain.Outcome,
	targetCost uint64,
) (TradeResult, error) {
	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		return TradeResult{}, domain.ErrInvalidOutcome
	}
	if targetCost == 0 {
		return TradeResult{}, domain.ErrZeroAmount
	}
	if targetCost < domain.MinTradeAmount {
		return TradeResult{}, domain.ErrTradeTooSmall
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: load config: %w", err)
	}
	if cfg.Paused {
		return TradeResult{}, domain.ErrProtocolPaused
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: lock market %s: %w", marketID.Hex(), err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: get market %s: %w", marketID.Hex(), err)
	}
	if market.State != domain.StateActive {
		return TradeResult{}, domain.ErrInvalidState
	}

	// Reserve the fee share of the budget before solving for shares.
	reserved, err := fees.Split(targetCost, cfg.ProtocolFeeBps, cfg.ResolverFeeBps, cfg.LPFeeBps)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: reserve fees: %w", err)
	}
	budget := targetCost - reserved.TotalFees

	cost, shares, err := lmsr.BuyCost(market.SharesYes, market.SharesNo, market.BParameter,
		outcome == domain.OutcomeYes, budget)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: solve buy: %w", err)
	}
	if shares == 0 {
		return TradeResult{}, domain.ErrTradeTooSmall
	}

	fb, err := fees.Split(cost, cfg.ProtocolFeeBps, cfg.ResolverFeeBps, cfg.LPFeeBps)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: split fees: %w", err)
	}
	total := cost + fb.TotalFees
	if total > targetCost {
		return TradeResult{}, domain.ErrSlippageExceeded
	}

	if outcome == domain.OutcomeYes {
		market.SharesYes += shares
	} else {
		market.SharesNo += shares
	}
	market.CurrentLiquidity += cost
	market.TotalVolume += cost
	market.AccruedProtocolFees += fb.ProtocolFee
	market.AccruedResolverFees += fb.ResolverFee
	market.AccruedLPFees += fb.LPFee

	// Bounded loss is checked after every trade.
	if err := lmsr.VerifyBoundedLoss(market.InitialLiquidity, market.CurrentLiquidity, market.BParameter); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: buy %s: %w", marketID.Hex(), err)
	}

	escrow := domain.EscrowAddress(marketID)
	if err := s.treasury.Transfer(ctx, user, escrow, total); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: collect payment: %w", err)
	}

	if err := s.markets.Update(ctx, market); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: update market %s: %w", marketID.Hex(), err)
	}

	now := s.now()
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return TradeResult{}, fmt.Errorf("trade_service: get position: %w", err)
		}
		pos = domain.Position{MarketID: marketID, User: user}
	}
	if outcome == domain.OutcomeYes {
		pos.SharesYes += shares
	} else {
		pos.SharesNo += shares
	}
	pos.TotalInvested += total
	pos.TradesCount++
	pos.LastTradeAt = &now
	if err := s.positions.Upsert(ctx, pos); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: upsert position: %w", err)
	}

	return s.finishTrade(ctx, market, "buy", user, outcome, shares, cost, fb, total, now)
}

// SellShares burns qty shares of one side and pays out the LMSR proceeds net
// of fees. minProceeds is the seller's slippage floor on the net payout.
func (s *TradeService) SellShares(
	ctx context.Context,
	user common.Address,
	marketID common.Hash,
	outcome domain.Outcome,
	qty uint64,
	minProceeds uint64,
) (TradeResult, error) {
	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		return TradeResult{}, domain.ErrInvalidOutcome
	}
	if qty == 0 {
		return TradeResult{}, domain.ErrZeroAmount
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: load config: %w", err)
	}
	if cfg.Paused {
		return TradeResult{}, domain.ErrProtocolPaused
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: lock market %s: %w", marketID.Hex(), err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: get market %s: %w", marketID.Hex(), err)
	}
	if market.State != domain.StateActive {
		return TradeResult{}, domain.ErrInvalidState
	}

	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: get position: %w", err)
	}
	held := pos.SharesYes
	if outcome == domain.OutcomeNo {
		held = pos.SharesNo
	}
	if held < qty {
		return TradeResult{}, domain.ErrInsufficientShares
	}

	proceeds, err := lmsr.SellProceeds(market.SharesYes, market.SharesNo, market.BParameter,
		outcome == domain.OutcomeYes, qty)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: solve sell: %w", err)
	}
	if proceeds < domain.MinTradeAmount {
		return TradeResult{}, domain.ErrTradeTooSmall
	}
	if proceeds > market.CurrentLiquidity {
		return TradeResult{}, domain.ErrInsufficientLiquidity
	}

	fb, err := fees.Split(proceeds, cfg.ProtocolFeeBps, cfg.ResolverFeeBps, cfg.LPFeeBps)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: split fees: %w", err)
	}
	net := proceeds - fb.TotalFees
	if net < minProceeds {
		return TradeResult{}, domain.ErrSlippageExceeded
	}

	if outcome == domain.OutcomeYes {
		market.SharesYes -= qty
	} else {
		market.SharesNo -= qty
	}
	market.CurrentLiquidity -= proceeds
	market.TotalVolume += proceeds
	market.AccruedProtocolFees += fb.ProtocolFee
	market.AccruedResolverFees += fb.ResolverFee
	market.AccruedLPFees += fb.LPFee

	if err := lmsr.VerifyBoundedLoss(market.InitialLiquidity, market.CurrentLiquidity, market.BParameter); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: sell %s: %w", marketID.Hex(), err)
	}

	escrow := domain.EscrowAddress(marketID)
	if err := s.treasury.Transfer(ctx, escrow, user, net); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: pay proceeds: %w", err)
	}

	if err := s.markets.Update(ctx, market); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: update market %s: %w", marketID.Hex(), err)
	}

	now := s.now()
	if outcome == domain.OutcomeYes {
		pos.SharesYes -= qty
	} else {
		pos.SharesNo -= qty
	}
	pos.TradesCount++
	pos.LastTradeAt = &now
	if err := s.positions.Upsert(ctx, pos); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: upsert position: %w", err)
	}

	return s.finishTrade(ctx, market, "sell", user, outcome, qty, proceeds, fb, net, now)
}

// finishTrade computes post-trade prices, refreshes the price cache, and
// emits the trade event.
func (s *TradeService) finishTrade(
	ctx context.Context,
	market domain.Market,
	side string,
	user common.Address,
	outcome domain.Outcome,
	shares, cost uint64,
	fb fees.Breakdown,
	total uint64,
	now time.Time,
) (TradeResult, error) {
	yes, err := lmsr.YesPrice(market.SharesYes, market.SharesNo, market.BParameter)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: post-trade price: %w", err)
	}
	no, err := lmsr.NoPrice(market.SharesYes, market.SharesNo, market.BParameter)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: post-trade price: %w", err)
	}

	if cacheErr := s.prices.SetPrices(ctx, market.ID, yes, no, now); cacheErr != nil {
		s.logger.WarnContext(ctx, "trade_service: price cache update failed",
			slog.String("market", market.ID.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.emit(ctx, domain.EventTradeExecuted, market.ID, now, map[string]any{
		"side":      side,
		"user":      user.Hex(),
		"outcome":   outcome.String(),
		"shares":    shares,
		"cost":      cost,
		"total":     total,
		"fees":      fb.TotalFees,
		"yes_price": yes,
	})
	s.logger.InfoContext(ctx, "trade_service: trade executed",
		slog.String("market", market.ID.Hex()),
		slog.String("side", side),
		slog.String("outcome", outcome.String()),
		slog.Uint64("shares", shares),
		slog.Uint64("cost", cost),
	)

	return TradeResult{
		Shares:   shares,
		Cost:     cost,
		Fees:     fb,
		Total:    total,
		YesPrice: yes,
		NoPrice:  no,
	}, nil
}
