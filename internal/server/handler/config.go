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

// ConfigService defines the methods the config handler requires from the
// service layer.
type ConfigService interface {
	Get(ctx context.Context) (domain.GlobalConfig, error)
	UpdateGlobalConfig(ctx context.Context, caller common.Address, next domain.GlobalConfig) error
	SetPaused(ctx context.Context, caller common.Address, paused bool) error
}

// ConfigHandler serves protocol configuration HTTP endpoints.
type ConfigHandler struct {
	config ConfigService
	logger *slog.Logger
}

// NewConfigHandler creates a ConfigHandler with the given service and logger.
func NewConfigHandler(config ConfigService, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		config: config,
		logger: logger,
	}
}

// configResponse is the JSON wire form of the global config.
type configResponse struct {
	Admin                 string `json:"admin"`
	BackendAuthority      string `json:"backend_authority"`
	ProtocolFeeWallet     string `json:"protocol_fee_wallet"`
	ProtocolFeeBps        uint16 `json:"protocol_fee_bps"`
	ResolverFeeBps        uint16 `json:"resolver_fee_bps"`
	LPFeeBps              uint16 `json:"lp_fee_bps"`
	ProposalThresholdBps  uint16 `json:"proposal_threshold_bps"`
	DisputeThresholdBps   uint16 `json:"dispute_threshold_bps"`
	MinResolutionDelayS   int64  `json:"min_resolution_delay_s"`
	DisputePeriodS        int64  `json:"dispute_period_s"`
	MinResolverReputation uint16 `json:"min_resolver_reputation"`
	Paused                bool   `json:"paused"`
}

func toConfigResponse(cfg domain.GlobalConfig) configResponse {
	return configResponse{
		Admin:                 cfg.Admin.Hex(),
		BackendAuthority:      cfg.BackendAuthority.Hex(),
		ProtocolFeeWallet:     cfg.ProtocolFeeWallet.Hex(),
		ProtocolFeeBps:        cfg.ProtocolFeeBps,
		ResolverFeeBps:        cfg.ResolverFeeBps,
		LPFeeBps:              cfg.LPFeeBps,
		ProposalThresholdBps:  cfg.ProposalThresholdBps,
		DisputeThresholdBps:   cfg.DisputeThresholdBps,
		MinResolutionDelayS:   int64(cfg.MinResolutionDelay / time.Second),
		DisputePeriodS:        int64(cfg.DisputePeriod / time.Second),
		MinResolverReputation: cfg.MinResolverReputation,
		Paused:                cfg.Paused,
	}
}

// GetConfig returns the current global protocol configuration.
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "get config", err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(cfg))
}

// updateConfigRequest is the JSON body for PUT /api/config.
type updateConfigRequest struct {
	Caller string         `json:"caller"`
	Config configResponse `json:"config"`
}

// UpdateConfig replaces the global protocol configuration. Admin only.
// PUT /api/config
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	admin, ok := parseAddress(req.Config.Admin)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid admin address")
		return
	}
	backend, ok := parseAddress(req.Config.BackendAuthority)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid backend authority address")
		return
	}
	feeWallet, ok := parseAddress(req.Config.ProtocolFeeWallet)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fee wallet address")
		return
	}

	next := domain.GlobalConfig{
		Admin:                 admin,
		BackendAuthority:      backend,
		ProtocolFeeWallet:     feeWallet,
		ProtocolFeeBps:        req.Config.ProtocolFeeBps,
		ResolverFeeBps:        req.Config.ResolverFeeBps,
		LPFeeBps:              req.Config.LPFeeBps,
		ProposalThresholdBps:  req.Config.ProposalThresholdBps,
		DisputeThresholdBps:   req.Config.DisputeThresholdBps,
		MinResolutionDelay:    time.Duration(req.Config.MinResolutionDelayS) * time.Second,
		DisputePeriod:         time.Duration(req.Config.DisputePeriodS) * time.Second,
		MinResolverReputation: req.Config.MinResolverReputation,
		Paused:                req.Config.Paused,
	}

	if err := h.config.UpdateGlobalConfig(r.Context(), caller, next); err != nil {
		writeDomainError(w, r, h.logger, "update config", err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(next))
}

// pauseRequest is the JSON body for POST /api/config/pause.
type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// SetPaused toggles the protocol pause flag.
// POST /api/config/pause
func (h *ConfigHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.config.SetPaused(r.Context(), caller, req.Paused); err != nil {
		writeDomainError(w, r, h.logger, "set paused", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}
