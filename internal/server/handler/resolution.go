package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// ResolutionService defines the settlement methods the resolution handler
// requires.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID string, outcome domain.Outcome, authority string) (domain.SettlementReport, error)
	SweepDue(ctx context.Context, limit int) (int, error)
}

// ResolutionHandler serves market resolution and sweep endpoints.
type ResolutionHandler struct {
	settle ResolutionService
	logger *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler with the given service
// and logger.
func NewResolutionHandler(settle ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		settle: settle,
		logger: logger,
	}
}

// resolveRequest is the JSON body of the resolve endpoint.
type resolveRequest struct {
	Outcome   domain.Outcome `json:"outcome"`
	Authority string         `json:"authority"`
}

// ResolveMarket declares the winning outcome of a closed market and returns
// the settlement report.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Outcome.Valid() {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	report, err := h.settle.Resolve(r.Context(), id, req.Outcome, req.Authority)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: resolve rejected",
			slog.String("market_id", id),
			slog.String("outcome", string(req.Outcome)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// TriggerSweep closes all due markets immediately instead of waiting for
// the next background tick.
// POST /api/sweep
func (h *ResolutionHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	closed, err := h.settle.SweepDue(r.Context(), 500)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sweep failed",
			slog.Int("closed", closed),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"closed": closed})
}
