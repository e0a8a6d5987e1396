package handlers

import (
	"net/http"

	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/pkg/engine"
)

// MarketHandler serves the market-wide endpoints: health, stats and the
// most-listed vehicles leaderboard.
type MarketHandler struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(logger *observability.Logger, eng *engine.Engine) *MarketHandler {
	return &MarketHandler{
		logger: logger,
		engine: eng,
	}
}

// healthFailure is the 503 payload when the listings store is unreachable.
type healthFailure struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"database_connected"`
	Error             string `json:"error"`
}

// Health handles GET /health.
func (h *MarketHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Health(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, healthFailure{
			Status:            "unhealthy",
			DatabaseConnected: false,
			Error:             err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Stats handles GET /stats.
func (h *MarketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Market stats failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// TopVehicles handles GET /top-vehicles.
func (h *MarketHandler) TopVehicles(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)

	top, err := h.engine.TopVehicles(r.Context(), limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Top vehicles query failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, top)
}
