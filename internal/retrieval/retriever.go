package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/carmarket/comparables-engine/internal/normalize"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/storage"
)

// Retrieval errors the request surface maps to status codes.
var (
	ErrMissingIdentity = errors.New("target vehicle missing make or model")
	ErrNoCandidates    = errors.New("no candidates found matching filters")
)

// Store provides the listing queries retrieval needs.
type Store interface {
	FetchCandidates(ctx context.Context, where string, args []interface{}, limit int) ([]*storage.Listing, error)
	FetchCohort(ctx context.Context, vehicleID, make, model string, limit int) ([]*storage.Listing, bool, error)
}

// Options tune one retrieval run.
type Options struct {
	CandidateLimit int
	MinResults     int
}

// Candidate is one recalled row annotated with the ladder step that
// admitted it.
type Candidate struct {
	Row      *storage.Listing
	Strategy string
}

// AttemptLog describes one executed ladder step.
type AttemptLog struct {
	Name           string         `json:"name"`
	RowCount       int            `json:"row_count"`
	QueryTimeS     float64        `json:"query_time_s"`
	FiltersApplied FiltersApplied `json:"filters_applied"`
}

// FiltersApplied mirrors the lock set of one attempt for debugging.
type FiltersApplied struct {
	HardLocks HardLocks `json:"hard_locks"`
	SoftLocks SoftLocks `json:"soft_locks"`
}

// HardLocks flags which exact-match constraints were active.
type HardLocks struct {
	Make          bool `json:"make"`
	Model         bool `json:"model"`
	BodyType      bool `json:"body_type"`
	FuelType      bool `json:"fuel_type"`
	Transmission  bool `json:"transmission"`
	ExteriorColor bool `json:"exterior_color"`
}

// SoftLocks shows the active windows as display strings; null means the
// target lacks that field.
type SoftLocks struct {
	Year    *string `json:"year"`
	Mileage *string `json:"mileage"`
	Price   *string `json:"price"`
	Power   *string `json:"power"`
}

// Debug is the retrieval trace served alongside results and error
// envelopes.
type Debug struct {
	SelectedAttempt *string      `json:"selected_attempt"`
	Attempts        []AttemptLog `json:"attempts"`
	Warning         string       `json:"warning,omitempty"`
	Error           string       `json:"error,omitempty"`
	UnmatchedColor  string       `json:"unmatched_color,omitempty"`
}

// Result is one retrieval run's outcome.
type Result struct {
	Candidates []*Candidate
	Debug      Debug
	CacheHit   bool
}

// Retriever walks the relaxation ladder against the store or a cached
// cohort universe.
type Retriever struct {
	store  Store
	cohort *CohortCache
	logger *observability.Logger
}

// NewRetriever creates a retriever. The cohort cache may be nil.
func NewRetriever(store Store, cohort *CohortCache, logger *observability.Logger) *Retriever {
	return &Retriever{store: store, cohort: cohort, logger: logger}
}

// Find recalls comparable candidates for the target row. The returned
// result always carries the attempt trace, including on sentinel errors;
// store failures return a nil result.
func (r *Retriever) Find(ctx context.Context, target *storage.Listing, opts Options) (*Result, error) {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 400
	}
	if opts.MinResults <= 0 {
		opts.MinResults = 10
	}

	t := NewTarget(target)
	result := &Result{Debug: Debug{Attempts: []AttemptLog{}}}

	if t.Make == "" || t.Model == "" {
		result.Debug.Error = "Target vehicle missing make or model"
		return result, ErrMissingIdentity
	}

	if t.Colour != "" && !normalize.KnownColour(t.Colour) {
		r.logger.Warn().
			Str("vehicle_id", t.ID).
			Str("color", t.Colour).
			Msg("Target colour is outside the canonical vocabulary")
		result.Debug.UnmatchedColor = t.Colour
	}

	universe, hit := r.loadUniverse(ctx, t, opts.CandidateLimit)
	result.CacheHit = hit

	var (
		best     []*Candidate
		bestName string
		seen     = make(map[string]bool)
	)

	for _, step := range Ladder() {
		key := step.effectiveKey(t)
		if seen[key] {
			r.logger.Debug().
				Str("vehicle_id", t.ID).
				Str("attempt", step.Name).
				Msg("Skipping attempt with identical effective filters")
			continue
		}
		seen[key] = true

		rows, elapsed, err := r.fetchStep(ctx, t, step, universe, hit, opts.CandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("retrieval attempt %s: %w", step.Name, err)
		}

		candidates := r.applyResidualLocks(t, step, rows)
		result.Debug.Attempts = append(result.Debug.Attempts, attemptLog(t, step, len(candidates), elapsed))

		if best == nil || len(candidates) > len(best) {
			best = candidates
			bestName = step.Name
		}
		if len(candidates) >= opts.MinResults {
			name := step.Name
			result.Candidates = candidates
			result.Debug.SelectedAttempt = &name
			return result, nil
		}
	}

	if len(best) > 0 {
		result.Candidates = best
		result.Debug.SelectedAttempt = &bestName
		result.Debug.Warning = fmt.Sprintf("Only found %d results (minimum: %d)", len(best), opts.MinResults)
		return result, nil
	}

	result.Debug.Error = "No candidates found matching filters"
	return result, ErrNoCandidates
}

// loadUniverse tries the cohort cache and schedules a background fill on a
// miss so the next request for this make/model hits.
func (r *Retriever) loadUniverse(ctx context.Context, t Target, limit int) ([]*storage.Listing, bool) {
	if !r.cohort.Enabled() {
		return nil, false
	}

	foldedMake := normalize.Fold(t.Make)
	foldedModel := normalize.Fold(t.Model)
	if rows, ok := r.cohort.Get(ctx, foldedMake, foldedModel, limit); ok {
		return rows, true
	}

	go r.populateCohort(t, foldedMake, foldedModel, limit)
	return nil, false
}

func (r *Retriever) populateCohort(t Target, foldedMake, foldedModel string, limit int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, usedFallback, err := r.store.FetchCohort(ctx, t.ID, t.Make, t.Model, limit)
	if err != nil {
		r.logger.Debug().Err(err).Str("vehicle_id", t.ID).Msg("Cohort universe fetch failed")
		return
	}
	r.cohort.Set(ctx, foldedMake, foldedModel, limit, rows)
	r.logger.Debug().
		Str("vehicle_id", t.ID).
		Int("row_count", len(rows)).
		Bool("fallback", usedFallback).
		Msg("Cohort universe cached")
}

// fetchStep runs one ladder step either against the cached universe or the
// store.
func (r *Retriever) fetchStep(ctx context.Context, t Target, step Step, universe []*storage.Listing, fromCache bool, limit int) ([]*storage.Listing, time.Duration, error) {
	spec := t.StepSpec(step)
	start := time.Now()

	if fromCache {
		// The universe is already pinned to this make and model; re-checking
		// them would drop rows the folded fallback fetch admitted.
		spec.Make, spec.Model = "", ""
		var rows []*storage.Listing
		for _, row := range universe {
			if spec.Matches(row) {
				rows = append(rows, row)
			}
		}
		return rows, time.Since(start), nil
	}

	where, args := spec.Where()
	rows, err := r.store.FetchCandidates(ctx, where, args, limit)
	if err != nil {
		return nil, 0, err
	}
	return rows, time.Since(start), nil
}

// applyResidualLocks filters what SQL cannot express: canonical colour
// equality and the year window extracted from the raw registration.
func (r *Retriever) applyResidualLocks(t Target, step Step, rows []*storage.Listing) []*Candidate {
	candidates := make([]*Candidate, 0, len(rows))
	for _, row := range rows {
		if t.Colour != "" {
			if row.Color == nil || normalize.Color(*row.Color) != t.Colour {
				continue
			}
		}
		if t.Year != 0 {
			year, ok := 0, false
			if row.FirstRegistrationRaw != nil {
				year, ok = normalize.ExtractYear(*row.FirstRegistrationRaw)
			}
			if !ok || abs(year-t.Year) > step.YearTolerance {
				continue
			}
		}
		candidates = append(candidates, &Candidate{Row: row, Strategy: step.Name})
	}
	return candidates
}

func attemptLog(t Target, step Step, rowCount int, elapsed time.Duration) AttemptLog {
	log := AttemptLog{
		Name:       step.Name,
		RowCount:   rowCount,
		QueryTimeS: math.Round(elapsed.Seconds()*1000) / 1000,
		FiltersApplied: FiltersApplied{
			HardLocks: HardLocks{
				Make:          t.Make != "",
				Model:         t.Model != "",
				BodyType:      t.Body != "",
				FuelType:      t.Fuel != "",
				Transmission:  t.Transmission != "",
				ExteriorColor: t.Colour != "",
			},
		},
	}
	if t.Year != 0 {
		label := step.yearLabel()
		log.FiltersApplied.SoftLocks.Year = &label
	}
	if t.Mileage > 0 {
		label := step.mileageLabel()
		log.FiltersApplied.SoftLocks.Mileage = &label
	}
	if t.Price > 0 {
		label := step.priceLabel()
		log.FiltersApplied.SoftLocks.Price = &label
	}
	if t.Power > 0 {
		label := step.powerLabel()
		log.FiltersApplied.SoftLocks.Power = &label
	}
	return log
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
