package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/retrieval"
	"github.com/carmarket/comparables-engine/internal/storage"
	"github.com/carmarket/comparables-engine/pkg/engine"
)

// ListingsHandler serves single-listing lookups and comparables queries.
type ListingsHandler struct {
	logger         *observability.Logger
	engine         *engine.Engine
	candidateLimit int
}

// NewListingsHandler creates a new listings handler. candidateLimit is the
// default recall budget used when the request does not override it.
func NewListingsHandler(logger *observability.Logger, eng *engine.Engine, candidateLimit int) *ListingsHandler {
	return &ListingsHandler{
		logger:         logger,
		engine:         eng,
		candidateLimit: candidateLimit,
	}
}

// GetVehicle handles GET /listings/{vehicleID}.
func (h *ListingsHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")

	vehicle, err := h.engine.Vehicle(r.Context(), vehicleID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("Vehicle %s not found", vehicleID))
		case storage.IsTransient(err):
			h.logger.WithContext(r.Context()).Warn().Err(err).Str("vehicle_id", vehicleID).Msg("Listings store unavailable")
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.WithContext(r.Context()).Error().Err(err).Str("vehicle_id", vehicleID).Msg("Vehicle lookup failed")
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, vehicle)
}

// FindComparables handles GET /listings/{vehicleID}/comparables.
func (h *ListingsHandler) FindComparables(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	q := r.URL.Query()

	top, ok := parseTop(q.Get("top"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid 'top' parameter")
		return
	}

	opts := engine.DefaultComparablesOptions()
	opts.Top = top
	opts.MaxCandidates = h.candidateLimit
	opts.YearVariance = parseIntDefault(q.Get("year_variance"), opts.YearVariance)
	opts.MileageMultiplier = parseFloatDefault(q.Get("mileage_variance_multiplier"), opts.MileageMultiplier)
	opts.MileageMinWindow = parseFloatDefault(q.Get("mileage_min_window"), opts.MileageMinWindow)
	opts.PowerVariancePct = parseFloatDefault(q.Get("power_variance_pct"), opts.PowerVariancePct)
	opts.PowerMinWindow = parseFloatDefault(q.Get("power_min_window"), opts.PowerMinWindow)
	opts.MaxCandidates = parseIntDefault(q.Get("max_candidates"), opts.MaxCandidates)
	opts.Balance = parseFloatDefault(q.Get("balance"), opts.Balance)

	result, err := h.engine.Comparables(r.Context(), vehicleID, opts)
	if err != nil {
		h.writeComparablesError(w, r, vehicleID, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ListingsHandler) writeComparablesError(w http.ResponseWriter, r *http.Request, vehicleID string, err error) {
	var rerr *engine.RetrievalError
	switch {
	case errors.Is(err, engine.ErrInvalidTop):
		writeError(w, http.StatusBadRequest, "Invalid 'top' parameter")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Vehicle %s not found", vehicleID))
	case errors.As(err, &rerr):
		if errors.Is(err, retrieval.ErrMissingIdentity) {
			writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: "Target vehicle missing make or model", Debug: &rerr.Debug})
			return
		}
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: "No comparable vehicles found", Debug: &rerr.Debug})
	case storage.IsTransient(err):
		h.logger.WithContext(r.Context()).Warn().Err(err).Str("vehicle_id", vehicleID).Msg("Listings store unavailable")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.WithContext(r.Context()).Error().Err(err).Str("vehicle_id", vehicleID).Msg("Comparables request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseTop parses the top parameter. An absent value falls back to 10; a
// value that does not parse as an integer is rejected outright.
func parseTop(raw string) (int, bool) {
	if raw == "" {
		return 10, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}
