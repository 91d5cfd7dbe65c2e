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

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	GetPosition(ctx context.Context, marketID common.Hash, user common.Address) (domain.Position, error)
	ListByUser(ctx context.Context, user common.Address, opts domain.ListOpts) ([]domain.Position, error)
	ClaimWinnings(ctx context.Context, user common.Address, marketID common.Hash) (uint64, error)
}

// PositionHandler serves position and claim HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// positionResponse is the JSON wire form of a position.
type positionResponse struct {
	MarketID      string     `json:"market_id"`
	User          string     `json:"user"`
	SharesYes     uint64     `json:"shares_yes"`
	SharesNo      uint64     `json:"shares_no"`
	TotalInvested uint64     `json:"total_invested"`
	AveragePrice  uint64     `json:"average_price"`
	TradesCount   uint32     `json:"trades_count"`
	LastTradeAt   *time.Time `json:"last_trade_at,omitempty"`
	HasClaimed    bool       `json:"has_claimed"`
	ClaimedAmount uint64     `json:"claimed_amount,omitempty"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		MarketID:      p.MarketID.Hex(),
		User:          p.User.Hex(),
		SharesYes:     p.SharesYes,
		SharesNo:      p.SharesNo,
		TotalInvested: p.TotalInvested,
		AveragePrice:  p.AveragePrice(),
		TradesCount:   p.TradesCount,
		LastTradeAt:   p.LastTradeAt,
		HasClaimed:    p.HasClaimed,
		ClaimedAmount: p.ClaimedAmount,
	}
}

// ListPositions returns all positions held by a user.
// GET /api/positions?user=0x...&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	user, ok := parseAddress(r.URL.Query().Get("user"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}

	opts := parseListOpts(r)
	positions, err := h.positions.ListByUser(r.Context(), user, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list positions", err)
		return
	}

	resp := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		resp = append(resp, toPositionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": resp,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// GetPosition returns one user's position in one market.
// GET /api/markets/{id}/positions/{user}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	user, ok := parseAddress(pathParam(r, "user"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}

	pos, err := h.positions.GetPosition(r.Context(), id, user)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// claimRequest is the JSON body for POST /api/markets/{id}/claim.
type claimRequest struct {
	User string `json:"user"`
}

// Claim pays out a user's winnings from a finalized market.
// POST /api/markets/{id}/claim
func (h *PositionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}

	payout, err := h.positions.ClaimWinnings(r.Context(), user, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim winnings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payout": payout})
}
