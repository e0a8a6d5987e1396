// Package engine exposes the comparables service as a plain Go API: fetch a
// vehicle, find and rank its comparables, and read store-level stats. The
// HTTP handlers, the Connect service and the CLI are thin shims over this
// facade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/ranking"
	"github.com/carmarket/comparables-engine/internal/retrieval"
	"github.com/carmarket/comparables-engine/internal/scoring"
	"github.com/carmarket/comparables-engine/internal/storage"
)

// ErrInvalidTop rejects non-positive result counts before any work runs.
var ErrInvalidTop = errors.New("invalid 'top' parameter")

// Store is the slice of the listings repository the engine reads.
type Store interface {
	FetchVehicle(ctx context.Context, vehicleID string) (*storage.Listing, error)
	CountAvailable(ctx context.Context) (int64, error)
	MarketStats(ctx context.Context) (*storage.MarketStats, error)
	TopVehicles(ctx context.Context, limit int) ([]*storage.TopVehicle, error)
}

// RetrievalError carries the attempt trace alongside a retrieval sentinel so
// failure envelopes can show what was tried.
type RetrievalError struct {
	Debug retrieval.Debug
	Err   error
}

func (e *RetrievalError) Error() string { return e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// Engine orchestrates one comparables request end to end: target fetch,
// candidate recall, scoring and ranking. Safe for concurrent use.
type Engine struct {
	store     Store
	retriever *retrieval.Retriever
	ranker    *ranking.Ranker
	logger    *observability.Logger
	now       func() time.Time
}

// Config wires the engine's collaborators. Now defaults to time.Now; tests
// pin it to keep age and freshness derivations stable.
type Config struct {
	Store     Store
	Retriever *retrieval.Retriever
	Ranker    *ranking.Ranker
	Logger    *observability.Logger
	Now       func() time.Time
}

// New builds the engine facade.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     cfg.Store,
		retriever: cfg.Retriever,
		ranker:    cfg.Ranker,
		logger:    cfg.Logger,
		now:       now,
	}
}

// ComparablesOptions are the request knobs of the comparables operation.
type ComparablesOptions struct {
	Top               int
	YearVariance      int
	MileageMultiplier float64
	MileageMinWindow  float64
	PowerVariancePct  float64
	PowerMinWindow    float64
	MaxCandidates     int
	Balance           float64
}

// DefaultComparablesOptions returns the serving defaults.
func DefaultComparablesOptions() ComparablesOptions {
	return ComparablesOptions{
		Top:               10,
		YearVariance:      2,
		MileageMultiplier: 2.0,
		MileageMinWindow:  5000,
		PowerVariancePct:  0.15,
		PowerMinWindow:    15,
		MaxCandidates:     400,
		Balance:           0,
	}
}

// normalised applies the documented bounds: top caps at 50, year variance
// floors at zero, the candidate limit floors at 50 and balance clamps to
// [-1, 1]. A top below one is rejected before this runs.
func (o ComparablesOptions) normalised() ComparablesOptions {
	if o.Top > 50 {
		o.Top = 50
	}
	if o.YearVariance < 0 {
		o.YearVariance = 0
	}
	if o.MaxCandidates < 50 {
		o.MaxCandidates = 50
	}
	o.Balance = math.Max(-1, math.Min(1, o.Balance))
	return o
}

func (o ComparablesOptions) tolerances() scoring.Tolerances {
	return scoring.Tolerances{
		YearToleranceYears:    float64(o.YearVariance),
		MileageToleranceRatio: o.MileageMultiplier,
		MileageMinWindow:      o.MileageMinWindow,
		PowerToleranceRatio:   o.PowerVariancePct,
		PowerMinWindow:        o.PowerMinWindow,
	}
}

// ComparablesResult is the full comparables envelope.
type ComparablesResult struct {
	Vehicle     *listing.Vehicle         `json:"vehicle"`
	Comparables []*ranking.RankedVehicle `json:"comparables"`
	Metadata    Metadata                 `json:"metadata"`
}

// Metadata describes how the result set was produced.
type Metadata struct {
	RequestedTop       int                      `json:"requested_top"`
	Returned           int                      `json:"returned"`
	TotalCandidates    int                      `json:"total_candidates"`
	RawCandidates      int                      `json:"raw_candidates"`
	FilterStrategy     string                   `json:"filter_strategy"`
	FiltersApplied     retrieval.FiltersApplied `json:"filters_applied"`
	RelaxationAttempts int                      `json:"relaxation_attempts"`
	ProcessingTimeS    float64                  `json:"processing_time_s"`
	Weights            ranking.Weights          `json:"weights"`
	CohortMedianPrice  *float64                 `json:"cohort_median_price"`
	Warning            string                   `json:"warning,omitempty"`
	Cache              CacheMeta                `json:"cache"`
}

// CacheMeta reports cohort cache involvement.
type CacheMeta struct {
	Hit bool `json:"hit"`
}

// Vehicle fetches one listing and returns its normalised payload. A missing
// or unavailable listing yields storage.ErrNotFound.
func (e *Engine) Vehicle(ctx context.Context, vehicleID string) (*listing.Vehicle, error) {
	row, err := e.store.FetchVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return listing.FromRow(row, e.now()), nil
}

// Comparables runs the full pipeline for one target listing. Sentinel
// failures surface as RetrievalError so callers can attach the attempt
// trace to their failure envelope.
func (e *Engine) Comparables(ctx context.Context, vehicleID string, opts ComparablesOptions) (*ComparablesResult, error) {
	if opts.Top < 1 {
		return nil, ErrInvalidTop
	}
	opts = opts.normalised()

	started := e.now()
	row, err := e.store.FetchVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	target := listing.FromRow(row, started)

	minResults := opts.Top
	if minResults < 5 {
		minResults = 5
	}
	recall, err := e.retriever.Find(ctx, row, retrieval.Options{
		CandidateLimit: opts.MaxCandidates,
		MinResults:     minResults,
	})
	if err != nil {
		if recall != nil {
			return nil, &RetrievalError{Debug: recall.Debug, Err: err}
		}
		return nil, err
	}

	candidates := make([]*listing.Vehicle, 0, len(recall.Candidates))
	for _, c := range recall.Candidates {
		candidates = append(candidates, listing.FromRow(c.Row, started))
	}

	weights := ranking.DefaultWeights().WithBalance(opts.Balance)
	ranked, stats := e.ranker.Rank(target, candidates, opts.tolerances(), weights)

	top := ranked
	if len(top) > opts.Top {
		top = top[:opts.Top]
	}

	elapsed := e.now().Sub(started)
	e.logger.Info().
		Str("vehicle_id", vehicleID).
		Int("returned", len(top)).
		Int("raw_candidates", len(recall.Candidates)).
		Int("priced_candidates", stats.PricedCount).
		Str("strategy", strategyName(recall.Debug)).
		Bool("cache_hit", recall.CacheHit).
		Dur("elapsed", elapsed).
		Msg("Comparables request served")

	return &ComparablesResult{
		Vehicle:     target,
		Comparables: top,
		Metadata: Metadata{
			RequestedTop:       opts.Top,
			Returned:           len(top),
			TotalCandidates:    len(ranked),
			RawCandidates:      len(recall.Candidates),
			FilterStrategy:     strategyName(recall.Debug),
			FiltersApplied:     selectedFilters(recall.Debug),
			RelaxationAttempts: len(recall.Debug.Attempts),
			ProcessingTimeS:    round3(elapsed.Seconds()),
			Weights:            weights,
			CohortMedianPrice:  ranking.MedianPrice(ranked),
			Warning:            recall.Debug.Warning,
			Cache:              CacheMeta{Hit: recall.CacheHit},
		},
	}, nil
}

// HealthStatus is the live health envelope.
type HealthStatus struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"database_connected"`
	VehicleCount      int64  `json:"vehicle_count"`
	Timestamp         string `json:"timestamp"`
}

// Health verifies store connectivity and reports the available count.
func (e *Engine) Health(ctx context.Context) (*HealthStatus, error) {
	count, err := e.store.CountAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &HealthStatus{
		Status:            "healthy",
		DatabaseConnected: true,
		VehicleCount:      count,
		Timestamp:         e.timestamp(),
	}, nil
}

// Stats is the store-wide aggregate envelope.
type Stats struct {
	TotalVehicles int64  `json:"total_vehicles"`
	UniqueMakes   int64  `json:"unique_makes"`
	DataSources   int64  `json:"data_sources"`
	Timestamp     string `json:"timestamp"`
}

// Stats aggregates the whole store.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	stats, err := e.store.MarketStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("market stats: %w", err)
	}
	return &Stats{
		TotalVehicles: stats.TotalVehicles,
		UniqueMakes:   stats.UniqueMakes,
		DataSources:   stats.DataSources,
		Timestamp:     e.timestamp(),
	}, nil
}

// TopVehicles is the most-listed ranking envelope.
type TopVehicles struct {
	Vehicles      []*storage.TopVehicle `json:"vehicles"`
	TotalReturned int                   `json:"total_returned"`
}

// TopVehicles lists the most-listed make/model pairs. The limit clamps to
// [1, 50].
func (e *Engine) TopVehicles(ctx context.Context, limit int) (*TopVehicles, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	rows, err := e.store.TopVehicles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top vehicles: %w", err)
	}
	if rows == nil {
		rows = []*storage.TopVehicle{}
	}
	return &TopVehicles{Vehicles: rows, TotalReturned: len(rows)}, nil
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func strategyName(d retrieval.Debug) string {
	if d.SelectedAttempt == nil {
		return "unknown"
	}
	return *d.SelectedAttempt
}

// selectedFilters echoes the winning attempt's filter set into the metadata.
func selectedFilters(d retrieval.Debug) retrieval.FiltersApplied {
	name := strategyName(d)
	for _, a := range d.Attempts {
		if a.Name == name {
			return a.FiltersApplied
		}
	}
	return retrieval.FiltersApplied{}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
