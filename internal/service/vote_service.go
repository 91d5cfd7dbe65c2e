package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// VoteService is the vote ledger and the aggregation entry point. Individual
// ballots are recorded synchronously, one per (market, voter, kind); tallies
// are submitted in batch by the authorized aggregator, which is the only
// identity the core trusts for vote totals.
type VoteService struct {
	markets domain.MarketStore
	votes   domain.VoteStore
	config  domain.ConfigStore
	emitter
	now func() time.Time
}

// NewVoteService creates a VoteService with all required dependencies.
func NewVoteService(
	markets domain.MarketStore,
	votes domain.VoteStore,
	config domain.ConfigStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		markets: markets,
		votes:   votes,
		config:  config,
		emitter: emitter{bus: bus, audit: audit, logger: logger},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitProposalVote records a like/dislike ballot on a Proposed market.
// A second ballot from the same voter fails with ErrDuplicateVote.
func (s *VoteService) SubmitProposalVote(ctx context.Context, voter common.Address, marketID common.Hash, approve bool) error {
	return s.submitVote(ctx, voter, marketID, domain.VoteKindProposal, domain.StateProposed, approve)
}

// SubmitDisputeVote records an agree/disagree ballot on a Disputed market.
func (s *VoteService) SubmitDisputeVote(ctx context.Context, voter common.Address, marketID common.Hash, approve bool) error {
	return s.submitVote(ctx, voter, marketID, domain.VoteKindDispute, domain.StateDisputed, approve)
}

func (s *VoteService) submitVote(
	ctx context.Context,
	voter common.Address,
	marketID common.Hash,
	kind domain.VoteKind,
	wantState domain.MarketState,
	approve bool,
) error {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("vote_service: get market %s: %w", marketID.Hex(), err)
	}
	if market.State != wantState {
		return domain.ErrInvalidState
	}

	now := s.now()
	record := domain.VoteRecord{
		MarketID: marketID,
		Voter:    voter,
		Kind:     kind,
		Approve:  approve,
		VotedAt:  now,
	}
	if err := s.votes.Create(ctx, record); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrDuplicateVote
		}
		return fmt.Errorf("vote_service: record vote: %w", err)
	}

	s.emit(ctx, domain.EventVoteSubmitted, marketID, now, map[string]any{
		"voter":   voter.Hex(),
		"kind":    string(kind),
		"approve": approve,
	})
	return nil
}

// AggregateProposalVotes records the proposal tallies submitted by the
// aggregator and approves the market when they clear the threshold.
// Re-aggregation below the threshold leaves the market in Proposed; once
// approved, the transition is one-way.
func (s *VoteService) AggregateProposalVotes(
	ctx context.Context,
	caller common.Address,
	marketID common.Hash,
	likes, dislikes uint64,
) (approved bool, err error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("vote_service: load config: %w", err)
	}
	if caller != cfg.BackendAuthority && caller != cfg.Admin {
		return false, domain.ErrUnauthorized
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return false, fmt.Errorf("vote_service: get market %s: %w", marketID.Hex(), err)
	}
	if market.State != domain.StateProposed {
		return false, domain.ErrInvalidState
	}

	market.ProposalLikes = likes
	market.ProposalDislikes = dislikes

	now := s.now()
	approved = market.ProposalApproved(cfg.ProposalThresholdBps)
	if approved {
		if err := checkClock(&market, now); err != nil {
			return false, err
		}
		market.State = domain.StateApproved
		market.ApprovedAt = &now
	}

	if err := s.markets.Update(ctx, market); err != nil {
		return false, fmt.Errorf("vote_service: update market %s: %w", marketID.Hex(), err)
	}

	s.emit(ctx, domain.EventVotesAggregated, marketID, now, map[string]any{
		"kind":     string(domain.VoteKindProposal),
		"for":      likes,
		"against":  dislikes,
		"approved": approved,
	})
	if approved {
		s.emit(ctx, domain.EventMarketApproved, marketID, now, map[string]any{
			"likes":    likes,
			"dislikes": dislikes,
		})
		s.logger.InfoContext(ctx, "vote_service: proposal approved",
			slog.String("market", marketID.Hex()),
			slog.Uint64("likes", likes),
			slog.Uint64("dislikes", dislikes),
		)
	}
	return approved, nil
}

// AggregateDisputeVotes records the dispute tallies submitted by the
// aggregator. The market stays Disputed; finalization evaluates the stored
// tallies against the dispute threshold.
func (s *VoteService) AggregateDisputeVotes(
	ctx context.Context,
	caller common.Address,
	marketID common.Hash,
	agree, disagree uint64,
) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("vote_service: load config: %w", err)
	}
	if caller != cfg.BackendAuthority && caller != cfg.Admin {
		return domain.ErrUnauthorized
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("vote_service: get market %s: %w", marketID.Hex(), err)
	}
	if market.State != domain.StateDisputed {
		return domain.ErrInvalidState
	}

	market.DisputeAgree = agree
	market.DisputeDisagree = disagree
	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("vote_service: update market %s: %w", marketID.Hex(), err)
	}

	s.emit(ctx, domain.EventVotesAggregated, marketID, s.now(), map[string]any{
		"kind":      string(domain.VoteKindDispute),
		"for":       agree,
		"against":   disagree,
		"succeeded": market.DisputeSucceeded(cfg.DisputeThresholdBps),
	})
	return nil
}

// Tally reads the ledger counts for one round of one market. The aggregator
// uses this to build the batch it submits.
func (s *VoteService) Tally(ctx context.Context, marketID common.Hash, kind domain.VoteKind) (approve, reject uint64, err error) {
	approve, reject, err = s.votes.Tally(ctx, marketID, kind)
	if err != nil {
		return 0, 0, fmt.Errorf("vote_service: tally %s: %w", marketID.Hex(), err)
	}
	return approve, reject, nil
}
