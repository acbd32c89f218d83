package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/engine"
)

// PositionService defines the position listing the handler requires.
type PositionService interface {
	ListByBettor(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Position, error)
}

// ClaimService defines the settlement methods the handler requires.
type ClaimService interface {
	Claim(ctx context.Context, positionID, claimant string) (engine.Entitlement, error)
	Entitlement(ctx context.Context, positionID string) (engine.Entitlement, error)
}

// PositionHandler serves position listing and claim endpoints.
type PositionHandler struct {
	positions PositionService
	claims    ClaimService
	store     domain.PositionStore
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given services and
// logger.
func NewPositionHandler(positions PositionService, claims ClaimService, store domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		claims:    claims,
		store:     store,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns one bettor's positions, newest first.
// GET /api/positions?bettor=alice
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	bettor := r.URL.Query().Get("bettor")
	if bettor == "" {
		writeError(w, http.StatusBadRequest, "bettor query parameter required")
		return
	}

	positions, err := h.positions.ListByBettor(r.Context(), bettor, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("bettor", bettor),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single position by its ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	pos, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// GetEntitlement previews what a position would be paid without claiming.
// GET /api/positions/{id}/entitlement
func (h *PositionHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	ent, err := h.claims.Entitlement(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ent)
}

// claimRequest is the JSON body of the claim endpoint.
type claimRequest struct {
	Claimant string `json:"claimant"`
}

// Claim pays out a position of a resolved market. Losing positions claim
// successfully with a zero payout; repeat claims conflict.
// POST /api/positions/{id}/claim
func (h *PositionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ent, err := h.claims.Claim(r.Context(), id, req.Claimant)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: claim rejected",
			slog.String("position_id", id),
			slog.String("claimant", req.Claimant),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ent)
}
