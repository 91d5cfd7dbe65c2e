package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
	"github.com/alanyoungcy/zmart/internal/service"
)

// TradeService defines the methods the trade handler requires from the
// service layer.
type TradeService interface {
	BuyShares(ctx context.Context, user common.Address, marketID common.Hash, outcome domain.Outcome, targetCost uint64) (service.TradeResult, error)
	SellShares(ctx context.Context, user common.Address, marketID common.Hash, outcome domain.Outcome, qty, minProceeds uint64) (service.TradeResult, error)
}

// TradeHandler serves buy and sell HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeResponse is the JSON wire form of an executed trade.
type tradeResponse struct {
	Shares      uint64 `json:"shares"`
	Cost        uint64 `json:"cost"`
	ProtocolFee uint64 `json:"protocol_fee"`
	ResolverFee uint64 `json:"resolver_fee"`
	LPFee       uint64 `json:"lp_fee"`
	Total       uint64 `json:"total"`
	YesPrice    uint64 `json:"yes_price"`
	NoPrice     uint64 `json:"no_price"`
}

func toTradeResponse(res service.TradeResult) tradeResponse {
	return tradeResponse{
		Shares:      res.Shares,
		Cost:        res.Cost,
		ProtocolFee: res.Fees.ProtocolFee,
		ResolverFee: res.Fees.ResolverFee,
		LPFee:       res.Fees.LPFee,
		Total:       res.Total,
		YesPrice:    res.YesPrice,
		NoPrice:     res.NoPrice,
	}
}

// buyRequest is the JSON body for POST /api/markets/{id}/buy.
type buyRequest struct {
	User       string `json:"user"`
	Outcome    string `json:"outcome"`
	TargetCost uint64 `json:"target_cost"`
}

// Buy spends up to target_cost buying shares of one side.
// POST /api/markets/{id}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}
	outcome, ok := parseOutcome(req.Outcome)
	if !ok || outcome == domain.OutcomeInvalid {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	result, err := h.trades.BuyShares(r.Context(), user, id, outcome, req.TargetCost)
	if err != nil {
		writeDomainError(w, r, h.logger, "buy shares", err)
		return
	}
	writeJSON(w, http.StatusOK, toTradeResponse(result))
}

// sellRequest is the JSON body for POST /api/markets/{id}/sell.
type sellRequest struct {
	User        string `json:"user"`
	Outcome     string `json:"outcome"`
	Shares      uint64 `json:"shares"`
	MinProceeds uint64 `json:"min_proceeds"`
}

// Sell burns shares of one side and pays out the proceeds net of fees.
// POST /api/markets/{id}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}
	outcome, ok := parseOutcome(req.Outcome)
	if !ok || outcome == domain.OutcomeInvalid {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	result, err := h.trades.SellShares(r.Context(), user, id, outcome, req.Shares, req.MinProceeds)
	if err != nil {
		writeDomainError(w, r, h.logger, "sell shares", err)
		return
	}
	writeJSON(w, http.StatusOK, toTradeResponse(result))
}
