package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// VoteService defines the methods the vote handler requires from the service
// layer.
type VoteService interface {
	SubmitProposalVote(ctx context.Context, voter common.Address, marketID common.Hash, approve bool) error
	SubmitDisputeVote(ctx context.Context, voter common.Address, marketID common.Hash, approve bool) error
	AggregateProposalVotes(ctx context.Context, caller common.Address, marketID common.Hash, likes, dislikes uint64) (bool, error)
	AggregateDisputeVotes(ctx context.Context, caller common.Address, marketID common.Hash, agree, disagree uint64) error
	Tally(ctx context.Context, marketID common.Hash, kind domain.VoteKind) (approve, reject uint64, err error)
}

// VoteHandler serves voting HTTP endpoints.
type VoteHandler struct {
	votes  VoteService
	logger *slog.Logger
}

// NewVoteHandler creates a VoteHandler with the given service and logger.
func NewVoteHandler(votes VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		votes:  votes,
		logger: logger,
	}
}

// voteRequest is the JSON body for ballot submission.
type voteRequest struct {
	Voter   string `json:"voter"`
	Kind    string `json:"kind"` // "proposal" or "dispute"
	Approve bool   `json:"approve"`
}

// SubmitVote records a single ballot on a market.
// POST /api/markets/{id}/votes
func (h *VoteHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	voter, ok := parseAddress(req.Voter)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid voter address")
		return
	}

	var err error
	switch domain.VoteKind(req.Kind) {
	case domain.VoteKindProposal:
		err = h.votes.SubmitProposalVote(r.Context(), voter, id, req.Approve)
	case domain.VoteKindDispute:
		err = h.votes.SubmitDisputeVote(r.Context(), voter, id, req.Approve)
	default:
		writeError(w, http.StatusBadRequest, "kind must be proposal or dispute")
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "submit vote", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// aggregateRequest is the JSON body for tally aggregation.
type aggregateRequest struct {
	Caller  string `json:"caller"`
	Kind    string `json:"kind"`
	For     uint64 `json:"for"`
	Against uint64 `json:"against"`
}

// AggregateVotes records batch tallies submitted by the aggregator.
// POST /api/markets/{id}/votes/aggregate
func (h *VoteHandler) AggregateVotes(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	switch domain.VoteKind(req.Kind) {
	case domain.VoteKindProposal:
		approved, err := h.votes.AggregateProposalVotes(r.Context(), caller, id, req.For, req.Against)
		if err != nil {
			writeDomainError(w, r, h.logger, "aggregate votes", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"approved": approved})
	case domain.VoteKindDispute:
		if err := h.votes.AggregateDisputeVotes(r.Context(), caller, id, req.For, req.Against); err != nil {
			writeDomainError(w, r, h.logger, "aggregate votes", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"recorded": true})
	default:
		writeError(w, http.StatusBadRequest, "kind must be proposal or dispute")
	}
}

// GetTally returns the ledger counts for one round of one market.
// GET /api/markets/{id}/votes?kind=proposal
func (h *VoteHandler) GetTally(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	kind := domain.VoteKind(r.URL.Query().Get("kind"))
	if kind != domain.VoteKindProposal && kind != domain.VoteKindDispute {
		writeError(w, http.StatusBadRequest, "kind must be proposal or dispute")
		return
	}

	approve, reject, err := h.votes.Tally(r.Context(), id, kind)
	if err != nil {
		writeDomainError(w, r, h.logger, "get tally", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id.Hex(),
		"kind":      string(kind),
		"for":       approve,
		"against":   reject,
	})
}
