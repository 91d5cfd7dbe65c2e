package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, id common.Hash, creator common.Address, question string, bParameter, initialLiquidity uint64, evidenceHash string) (domain.Market, error)
	ApproveProposal(ctx context.Context, id common.Hash) error
	ActivateMarket(ctx context.Context, caller common.Address, id common.Hash) error
	CancelMarket(ctx context.Context, caller common.Address, id common.Hash) error
	ResolveMarket(ctx context.Context, resolver common.Address, id common.Hash, outcome domain.Outcome, evidenceHash string) error
	InitiateDispute(ctx context.Context, initiator common.Address, id common.Hash) error
	FinalizeMarket(ctx context.Context, id common.Hash) (domain.Outcome, error)
	WithdrawLiquidity(ctx context.Context, caller common.Address, id common.Hash) (uint64, error)
	GetMarket(ctx context.Context, id common.Hash) (domain.Market, error)
	ListMarkets(ctx context.Context, state *domain.MarketState, opts domain.ListOpts) ([]domain.Market, error)
	Prices(ctx context.Context, id common.Hash) (yes, no uint64, err error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketResponse is the JSON wire form of a market.
type marketResponse struct {
	ID               string `json:"id"`
	Creator          string `json:"creator"`
	State            string `json:"state"`
	Question         string `json:"question"`
	EvidenceHash     string `json:"evidence_hash,omitempty"`
	BParameter       uint64 `json:"b_parameter"`
	InitialLiquidity uint64 `json:"initial_liquidity"`
	CurrentLiquidity uint64 `json:"current_liquidity"`
	SharesYes        uint64 `json:"shares_yes"`
	SharesNo         uint64 `json:"shares_no"`
	TotalVolume      uint64 `json:"total_volume"`

	Resolver        string `json:"resolver,omitempty"`
	ProposedOutcome string `json:"proposed_outcome,omitempty"`
	FinalOutcome    string `json:"final_outcome,omitempty"`
	WasDisputed     bool   `json:"was_disputed,omitempty"`

	ProposalLikes    uint64 `json:"proposal_likes"`
	ProposalDislikes uint64 `json:"proposal_dislikes"`
	DisputeAgree     uint64 `json:"dispute_agree,omitempty"`
	DisputeDisagree  uint64 `json:"dispute_disagree,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

func toMarketResponse(m domain.Market) marketResponse {
	resp := marketResponse{
		ID:               m.ID.Hex(),
		Creator:          m.Creator.Hex(),
		State:            m.State.String(),
		Question:         m.Question,
		EvidenceHash:     m.EvidenceHash,
		BParameter:       m.BParameter,
		InitialLiquidity: m.InitialLiquidity,
		CurrentLiquidity: m.CurrentLiquidity,
		SharesYes:        m.SharesYes,
		SharesNo:         m.SharesNo,
		TotalVolume:      m.TotalVolume,
		WasDisputed:      m.WasDisputed,
		ProposalLikes:    m.ProposalLikes,
		ProposalDislikes: m.ProposalDislikes,
		DisputeAgree:     m.DisputeAgree,
		DisputeDisagree:  m.DisputeDisagree,
		CreatedAt:        m.CreatedAt,
		ActivatedAt:      m.ActivatedAt,
		FinalizedAt:      m.FinalizedAt,
	}
	if m.Resolver != (common.Address{}) {
		resp.Resolver = m.Resolver.Hex()
	}
	if m.ProposedOutcome != domain.OutcomeUnset {
		resp.ProposedOutcome = m.ProposedOutcome.String()
	}
	if m.FinalOutcome != domain.OutcomeUnset {
		resp.FinalOutcome = m.FinalOutcome.String()
	}
	return resp
}

// createMarketRequest is the JSON body for POST /api/markets.
type createMarketRequest struct {
	ID               string `json:"id"`
	Creator          string `json:"creator"`
	Question         string `json:"question"`
	BParameter       uint64 `json:"b_parameter"`
	InitialLiquidity uint64 `json:"initial_liquidity"`
	EvidenceHash     string `json:"evidence_hash"`
}

// CreateMarket opens a new market proposal.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, ok := parseHash(req.ID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), id, creator, req.Question,
		req.BParameter, req.InitialLiquidity, req.EvidenceHash)
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketResponse(market))
}

// ListMarkets returns markets, optionally filtered by state.
// GET /api/markets?state=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var state *domain.MarketState
	if s := r.URL.Query().Get("state"); s != "" {
		parsed, ok := parseState(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown market state")
			return
		}
		state = &parsed
	}

	markets, err := h.markets.ListMarkets(r.Context(), state, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list markets", err)
		return
	}

	resp := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		resp = append(resp, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": resp,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetMarket returns a single market by id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

// GetPrices returns the current LMSR prices for a market.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	yes, no, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get prices", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id.Hex(),
		"yes_price": yes,
		"no_price":  no,
	})
}

// callerRequest is the JSON body for lifecycle endpoints acting on behalf of
// an address.
type callerRequest struct {
	Caller string `json:"caller"`
}

func decodeCaller(r *http.Request) (common.Address, bool) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return common.Address{}, false
	}
	return parseAddress(req.Caller)
}

// ApproveMarket moves a market from proposed to approved.
// POST /api/markets/{id}/approve
func (h *MarketHandler) ApproveMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	if err := h.markets.ApproveProposal(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, "approve market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": domain.StateApproved.String()})
}

// ActivateMarket opens an approved market for trading.
// POST /api/markets/{id}/activate
func (h *MarketHandler) ActivateMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	caller, ok := decodeCaller(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	if err := h.markets.ActivateMarket(r.Context(), caller, id); err != nil {
		writeDomainError(w, r, h.logger, "activate market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": domain.StateActive.String()})
}

// CancelMarket terminates a market before trading starts.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	caller, ok := decodeCaller(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	if err := h.markets.CancelMarket(r.Context(), caller, id); err != nil {
		writeDomainError(w, r, h.logger, "cancel market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": domain.StateCancelled.String()})
}

// resolveRequest is the JSON body for POST /api/markets/{id}/resolve.
type resolveRequest struct {
	Resolver     string `json:"resolver"`
	Outcome      string `json:"outcome"`
	EvidenceHash string `json:"evidence_hash"`
}

// ResolveMarket records a proposed resolution.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resolver, ok := parseAddress(req.Resolver)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resolver address")
		return
	}
	outcome, ok := parseOutcome(req.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid outcome")
		return
	}

	if err := h.markets.ResolveMarket(r.Context(), resolver, id, outcome, req.EvidenceHash); err != nil {
		writeDomainError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state":   domain.StateResolving.String(),
		"outcome": outcome.String(),
	})
}

// DisputeMarket challenges a proposed resolution.
// POST /api/markets/{id}/dispute
func (h *MarketHandler) DisputeMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	caller, ok := decodeCaller(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	if err := h.markets.InitiateDispute(r.Context(), caller, id); err != nil {
		writeDomainError(w, r, h.logger, "dispute market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": domain.StateDisputed.String()})
}

// FinalizeMarket settles the market outcome.
// POST /api/markets/{id}/finalize
func (h *MarketHandler) FinalizeMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	outcome, err := h.markets.FinalizeMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "finalize market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state":   domain.StateFinalized.String(),
		"outcome": outcome.String(),
	})
}

// WithdrawLiquidity pays the residual escrow back to the creator.
// POST /api/markets/{id}/withdraw
func (h *MarketHandler) WithdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	caller, ok := decodeCaller(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	amount, err := h.markets.WithdrawLiquidity(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "withdraw liquidity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}
