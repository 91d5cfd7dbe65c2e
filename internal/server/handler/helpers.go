package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// parseHash parses a 32-byte hex hash, rejecting malformed or zero values.
func parseHash(s string) (common.Hash, bool) {
	if s == "" {
		return common.Hash{}, false
	}
	h := common.HexToHash(s)
	if h == (common.Hash{}) {
		return common.Hash{}, false
	}
	return h, true
}

// parseAddress parses a 20-byte hex address, rejecting malformed or zero
// values.
func parseAddress(s string) (common.Address, bool) {
	if s == "" || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	a := common.HexToAddress(s)
	if a == (common.Address{}) {
		return common.Address{}, false
	}
	return a, true
}

// parseOutcome maps a wire outcome name to the domain value.
func parseOutcome(s string) (domain.Outcome, bool) {
	switch s {
	case "yes":
		return domain.OutcomeYes, true
	case "no":
		return domain.OutcomeNo, true
	case "invalid":
		return domain.OutcomeInvalid, true
	default:
		return domain.OutcomeUnset, false
	}
}

// parseState maps a wire state name to the domain value.
func parseState(s string) (domain.MarketState, bool) {
	for st := domain.StateProposed; st <= domain.StateCancelled; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// writeDomainError maps service errors to HTTP status codes, logging the
// unexpected ones.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrDuplicateVote),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyDisputed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, unwrapMsg(err))
	case errors.Is(err, domain.ErrProtocolPaused):
		writeError(w, http.StatusServiceUnavailable, unwrapMsg(err))
	case errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrTradeTooSmall),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidMarketID),
		errors.Is(err, domain.ErrInvalidBParameter),
		errors.Is(err, domain.ErrInvalidEvidence),
		errors.Is(err, domain.ErrInvalidTimestamp),
		errors.Is(err, domain.ErrThresholdNotMet),
		errors.Is(err, domain.ErrNoVotesRecorded),
		errors.Is(err, domain.ErrNoResolutionProposed),
		errors.Is(err, domain.ErrResolutionTooEarly),
		errors.Is(err, domain.ErrDisputeWindowClosed),
		errors.Is(err, domain.ErrDisputeWindowOpen),
		errors.Is(err, domain.ErrNoWinnings),
		errors.Is(err, domain.ErrInvalidFeeConfig),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.Is(err, domain.ErrInvalidTimeLimit):
		writeError(w, http.StatusUnprocessableEntity, unwrapMsg(err))
	default:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// unwrapMsg returns the innermost error message, stripping service prefixes
// from wrapped sentinel errors.
func unwrapMsg(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}
