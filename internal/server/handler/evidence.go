package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// maxEvidenceSize caps uploaded evidence documents at 8 MiB.
const maxEvidenceSize = 8 << 20

// EvidenceHandler serves evidence document upload and retrieval endpoints.
// Documents are content-addressed; markets reference them by keccak hash.
type EvidenceHandler struct {
	evidence domain.EvidenceStore
	logger   *slog.Logger
}

// NewEvidenceHandler creates an EvidenceHandler with the given store and
// logger.
func NewEvidenceHandler(evidence domain.EvidenceStore, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		evidence: evidence,
		logger:   logger,
	}
}

// Upload stores an evidence document and returns its content hash. The hash
// is what resolvers submit alongside a resolution proposal.
// POST /api/evidence
func (h *EvidenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEvidenceSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body failed")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty evidence document")
		return
	}
	if len(body) > maxEvidenceSize {
		writeError(w, http.StatusRequestEntityTooLarge, "evidence document too large")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	hash := ethcrypto.Keccak256Hash(body).Hex()

	exists, err := h.evidence.Exists(r.Context(), hash)
	if err != nil {
		writeDomainError(w, r, h.logger, "check evidence", err)
		return
	}
	if !exists {
		if err := h.evidence.Put(r.Context(), hash, bytes.NewReader(body), contentType); err != nil {
			writeDomainError(w, r, h.logger, "store evidence", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"hash": hash,
		"size": len(body),
	})
}

// Get streams a stored evidence document back to the caller.
// GET /api/evidence/{hash}
func (h *EvidenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(pathParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid evidence hash")
		return
	}

	rc, err := h.evidence.Get(r.Context(), hash.Hex())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeDomainError(w, r, h.logger, "get evidence", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream evidence failed",
			slog.String("error", err.Error()),
		)
	}
}
