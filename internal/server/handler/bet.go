package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// BetService defines the methods that the bet handler requires.
type BetService interface {
	PlaceBet(ctx context.Context, marketID, bettor string, side domain.Outcome, amount uint64) (domain.Position, domain.Market, error)
	PotentialPayout(ctx context.Context, marketID string, side domain.Outcome, amount uint64) (uint64, error)
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error)
}

// BetHandler serves bet placement and quoting endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body of the bet endpoint.
type placeBetRequest struct {
	Bettor string         `json:"bettor"`
	Side   domain.Outcome `json:"side"`
	Amount uint64         `json:"amount"`
}

// placeBetResponse returns the recorded position together with the market
// state after the pool update.
type placeBetResponse struct {
	Position domain.Position `json:"position"`
	Market   domain.Market   `json:"market"`
}

// PlaceBet stakes an amount on one side of a market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, market, err := h.bets.PlaceBet(r.Context(), id, req.Bettor, req.Side, req.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: bet rejected",
			slog.String("market_id", id),
			slog.String("bettor", req.Bettor),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeBetResponse{
		Position: pos,
		Market:   market,
	})
}

// Quote returns the gross payout a hypothetical bet would receive if its
// side won at the current pool state.
// GET /api/markets/{id}/quote?side=yes&amount=30
func (h *BetHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	side := domain.Outcome(r.URL.Query().Get("side"))
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	payout, err := h.bets.PotentialPayout(r.Context(), id, side, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":        id,
		"side":            side,
		"amount":          amount,
		"potentialPayout": payout,
	})
}

// ListMarketBets returns the positions recorded against a market, oldest
// first.
// GET /api/markets/{id}/bets
func (h *BetHandler) ListMarketBets(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	positions, err := h.bets.ListByMarket(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market bets failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}
