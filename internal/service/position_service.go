package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// PositionService reads positions and settles winnings on finalized markets.
type PositionService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	treasury  domain.Treasury
	locks     domain.LockManager
	emitter
	now func() time.Time
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	treasury domain.Treasury,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		markets:   markets,
		positions: positions,
		treasury:  treasury,
		locks:     locks,
		emitter:   emitter{bus: bus, audit: audit, logger: logger},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ClaimWinnings pays a user their share of the settled pool. Winners split
// the pool pro rata by winning shares; on an invalid outcome every share
// participates in the refund. One-shot per position: the second attempt
// fails with ErrAlreadyClaimed and changes nothing. The first successful
// claim of a market also releases the accrued resolver fees to the resolver.
func (s *PositionService) ClaimWinnings(ctx context.Context, user common.Address, marketID common.Hash) (uint64, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("position_service: lock market %s: %w", marketID.Hex(), err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("position_service: get market %s: %w", marketID.Hex(), err)
	}
	if market.State != domain.StateFinalized {
		return 0, domain.ErrInvalidState
	}

	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		return 0, fmt.Errorf("position_service: get position: %w", err)
	}
	if pos.HasClaimed {
		return 0, domain.ErrAlreadyClaimed
	}

	winning := pos.WinningShares(market.FinalOutcome)
	if winning == 0 {
		return 0, domain.ErrNoWinnings
	}

	totalWinning, err := s.positions.TotalWinningShares(ctx, marketID, market.FinalOutcome)
	if err != nil {
		return 0, fmt.Errorf("position_service: total winning shares: %w", err)
	}
	if totalWinning == 0 {
		return 0, domain.ErrNoWinnings
	}

	payout, err := proRata(market.CurrentLiquidity, winning, totalWinning)
	if err != nil {
		return 0, fmt.Errorf("position_service: payout share: %w", err)
	}

	escrow := domain.EscrowAddress(marketID)
	if payout > 0 {
		if err := s.treasury.Transfer(ctx, escrow, user, payout); err != nil {
			return 0, fmt.Errorf("position_service: pay winnings: %w", err)
		}
	}

	// Resolver fees are released with the first claim, then zeroed so they
	// cannot pay twice.
	if market.AccruedResolverFees > 0 {
		if err := s.treasury.Transfer(ctx, escrow, market.Resolver, market.AccruedResolverFees); err != nil {
			return 0, fmt.Errorf("position_service: pay resolver fees: %w", err)
		}
		market.AccruedResolverFees = 0
		if err := s.markets.Update(ctx, market); err != nil {
			return 0, fmt.Errorf("position_service: update market %s: %w", marketID.Hex(), err)
		}
	}

	pos.HasClaimed = true
	pos.ClaimedAmount = payout
	if err := s.positions.Upsert(ctx, pos); err != nil {
		return 0, fmt.Errorf("position_service: upsert position: %w", err)
	}

	now := s.now()
	s.emit(ctx, domain.EventWinningsClaimed, marketID, now, map[string]any{
		"user":    user.Hex(),
		"outcome": market.FinalOutcome.String(),
		"shares":  winning,
		"payout":  payout,
	})
	s.logger.InfoContext(ctx, "position_service: winnings claimed",
		slog.String("market", marketID.Hex()),
		slog.String("user", user.Hex()),
		slog.Uint64("payout", payout),
	)
	return payout, nil
}

// GetPosition returns a user's position in a market.
func (s *PositionService) GetPosition(ctx context.Context, marketID common.Hash, user common.Address) (domain.Position, error) {
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position: %w", err)
	}
	return pos, nil
}

// ListByUser returns all positions held by a user.
func (s *PositionService) ListByUser(ctx context.Context, user common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByUser(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list positions: %w", err)
	}
	return positions, nil
}

// proRata returns pool*part/total with a 128-bit intermediate product.
func proRata(pool, part, total uint64) (uint64, error) {
	if total == 0 {
		return 0, domain.ErrNoWinnings
	}
	hi, lo := bits.Mul64(pool, part)
	if hi >= total {
		return 0, fmt.Errorf("pro-rata share overflows")
	}
	q, _ := bits.Div64(hi, lo, total)
	return q, nil
}
