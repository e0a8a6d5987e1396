package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/ranking"
	"github.com/carmarket/comparables-engine/internal/retrieval"
	"github.com/carmarket/comparables-engine/internal/scoring"
	"github.com/carmarket/comparables-engine/internal/storage"
)

var fixedNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }
func timePtr(t time.Time) *time.Time { return &t }

// fakeStore backs both the engine facade and the retriever in one double.
type fakeStore struct {
	mu sync.Mutex

	vehicles map[string]*storage.Listing
	fetchErr error

	candidates     []*storage.Listing
	candidateLimit int

	count    int64
	countErr error

	stats    *storage.MarketStats
	statsErr error

	top      []*storage.TopVehicle
	topErr   error
	topLimit int
}

func (f *fakeStore) FetchVehicle(ctx context.Context, vehicleID string) (*storage.Listing, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if v, ok := f.vehicles[vehicleID]; ok {
		return v, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) FetchCandidates(ctx context.Context, where string, args []interface{}, limit int) ([]*storage.Listing, error) {
	f.mu.Lock()
	f.candidateLimit = limit
	f.mu.Unlock()
	return f.candidates, nil
}

func (f *fakeStore) FetchCohort(ctx context.Context, vehicleID, mk, model string, limit int) ([]*storage.Listing, bool, error) {
	return nil, false, nil
}

func (f *fakeStore) CountAvailable(ctx context.Context) (int64, error) {
	return f.count, f.countErr
}

func (f *fakeStore) MarketStats(ctx context.Context) (*storage.MarketStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeStore) TopVehicles(ctx context.Context, limit int) ([]*storage.TopVehicle, error) {
	f.mu.Lock()
	f.topLimit = limit
	f.mu.Unlock()
	return f.top, f.topErr
}

func (f *fakeStore) lastCandidateLimit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidateLimit
}

func targetRow(id string) *storage.Listing {
	return &storage.Listing{
		VehicleID:            id,
		ListingURL:           strPtr("https://listings.example/" + id),
		Make:                 strPtr("Volkswagen"),
		Model:                strPtr("Golf"),
		BodyType:             strPtr("Limousine"),
		FuelType:             strPtr("Benzin"),
		Transmission:         strPtr("Automatik"),
		Color:                strPtr("Schwarz"),
		FirstRegistrationRaw: strPtr("2018-05-01"),
		Description:          strPtr("Sitzheizung und Panoramadach"),
		Images:               strPtr("https://img.example/1.jpg"),
		IsAvailable:          true,
		PriceNum:             floatPtr(18500),
		MileageNum:           floatPtr(88000),
		PowerNum:             floatPtr(110),
		UpdatedAt:            timePtr(fixedNow.Add(-24 * time.Hour)),
	}
}

func candidateRows(prices ...float64) []*storage.Listing {
	rows := make([]*storage.Listing, 0, len(prices))
	for i, p := range prices {
		row := targetRow(string(rune('a'+i)) + "-cand")
		row.PriceNum = floatPtr(p)
		rows = append(rows, row)
	}
	return rows
}

func newTestEngine(store *fakeStore) *Engine {
	logger := observability.DefaultLogger()
	return New(Config{
		Store:     store,
		Retriever: retrieval.NewRetriever(store, nil, logger),
		Ranker:    ranking.NewRanker(scoring.NewEngine(scoring.EngineConfig{}), logger),
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	})
}

func TestVehicle(t *testing.T) {
	store := &fakeStore{vehicles: map[string]*storage.Listing{"veh-1": targetRow("veh-1")}}
	eng := newTestEngine(store)

	got, err := eng.Vehicle(context.Background(), "veh-1")
	require.NoError(t, err)
	assert.Equal(t, "veh-1", got.ID)
	require.NotNil(t, got.PriceEUR)
	assert.InDelta(t, 18500, *got.PriceEUR, 1e-9)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2018, *got.Year)
	require.NotNil(t, got.FreshnessDays)
	assert.InDelta(t, 1.0, *got.FreshnessDays, 1e-9)
}

func TestVehicle_NotFound(t *testing.T) {
	eng := newTestEngine(&fakeStore{})

	got, err := eng.Vehicle(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestComparables_HappyPath(t *testing.T) {
	store := &fakeStore{
		vehicles:   map[string]*storage.Listing{"veh-1": targetRow("veh-1")},
		candidates: candidateRows(15000, 16000, 17000, 18000, 19000, 20000),
	}
	eng := newTestEngine(store)

	opts := DefaultComparablesOptions()
	opts.Top = 3
	got, err := eng.Comparables(context.Background(), "veh-1", opts)
	require.NoError(t, err)

	assert.Equal(t, "veh-1", got.Vehicle.ID)
	require.Len(t, got.Comparables, 3)
	// Cheapest listings win on deal with everything else identical.
	assert.InDelta(t, 15000, *got.Comparables[0].PriceEUR, 1e-9)
	for i := 1; i < len(got.Comparables); i++ {
		assert.GreaterOrEqual(t, got.Comparables[i-1].FinalScore, got.Comparables[i].FinalScore)
	}

	meta := got.Metadata
	assert.Equal(t, 3, meta.RequestedTop)
	assert.Equal(t, 3, meta.Returned)
	assert.Equal(t, 6, meta.TotalCandidates)
	assert.Equal(t, 6, meta.RawCandidates)
	assert.Equal(t, "strict", meta.FilterStrategy)
	assert.True(t, meta.FiltersApplied.HardLocks.Make)
	assert.Equal(t, 1, meta.RelaxationAttempts)
	assert.InDelta(t, 0.55, meta.Weights.Match, 1e-9)
	assert.InDelta(t, 0.30, meta.Weights.Deal, 1e-9)
	assert.InDelta(t, 0.10, meta.Weights.Freshness, 1e-9)
	assert.InDelta(t, 0.05, meta.Weights.Trust, 1e-9)
	require.NotNil(t, meta.CohortMedianPrice)
	assert.InDelta(t, 17500, *meta.CohortMedianPrice, 1e-9)
	assert.Empty(t, meta.Warning)
	assert.False(t, meta.Cache.Hit)
	assert.GreaterOrEqual(t, meta.ProcessingTimeS, 0.0)
	assert.Equal(t, 400, store.lastCandidateLimit())
}

func TestComparables_InvalidTop(t *testing.T) {
	store := &fakeStore{vehicles: map[string]*storage.Listing{"veh-1": targetRow("veh-1")}}
	eng := newTestEngine(store)

	got, err := eng.Comparables(context.Background(), "veh-1", ComparablesOptions{Top: 0})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrInvalidTop)
}

func TestComparables_ClampsOptions(t *testing.T) {
	store := &fakeStore{
		vehicles:   map[string]*storage.Listing{"veh-1": targetRow("veh-1")},
		candidates: candidateRows(15000, 16000, 17000, 18000, 19000),
	}
	eng := newTestEngine(store)

	opts := DefaultComparablesOptions()
	opts.Top = 120
	opts.MaxCandidates = 10
	opts.Balance = 5
	got, err := eng.Comparables(context.Background(), "veh-1", opts)
	require.NoError(t, err)

	assert.Equal(t, 50, got.Metadata.RequestedTop)
	assert.Equal(t, 50, store.lastCandidateLimit())
	assert.InDelta(t, 0.70, got.Metadata.Weights.Match, 1e-9)
	assert.InDelta(t, 0.15, got.Metadata.Weights.Deal, 1e-9)
}

func TestComparables_TargetNotFound(t *testing.T) {
	eng := newTestEngine(&fakeStore{})

	got, err := eng.Comparables(context.Background(), "missing", DefaultComparablesOptions())
	assert.Nil(t, got)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestComparables_NoCandidates(t *testing.T) {
	store := &fakeStore{vehicles: map[string]*storage.Listing{"veh-1": targetRow("veh-1")}}
	eng := newTestEngine(store)

	got, err := eng.Comparables(context.Background(), "veh-1", DefaultComparablesOptions())
	require.Nil(t, got)
	assert.ErrorIs(t, err, retrieval.ErrNoCandidates)

	var rerr *RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Len(t, rerr.Debug.Attempts, 5)
	assert.Equal(t, "No candidates found matching filters", rerr.Debug.Error)
}

func TestComparables_MissingIdentity(t *testing.T) {
	row := targetRow("veh-1")
	row.Model = nil
	store := &fakeStore{vehicles: map[string]*storage.Listing{"veh-1": row}}
	eng := newTestEngine(store)

	got, err := eng.Comparables(context.Background(), "veh-1", DefaultComparablesOptions())
	require.Nil(t, got)
	assert.ErrorIs(t, err, retrieval.ErrMissingIdentity)

	var rerr *RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Target vehicle missing make or model", rerr.Debug.Error)
}

func TestComparables_FallbackWarning(t *testing.T) {
	store := &fakeStore{
		vehicles:   map[string]*storage.Listing{"veh-1": targetRow("veh-1")},
		candidates: candidateRows(15000, 16000, 17000),
	}
	eng := newTestEngine(store)

	got, err := eng.Comparables(context.Background(), "veh-1", DefaultComparablesOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, got.Metadata.Returned)
	assert.Equal(t, "strict", got.Metadata.FilterStrategy)
	assert.Equal(t, 5, got.Metadata.RelaxationAttempts)
	assert.Equal(t, "Only found 3 results (minimum: 10)", got.Metadata.Warning)
}

func TestHealth(t *testing.T) {
	eng := newTestEngine(&fakeStore{count: 1234})

	got, err := eng.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", got.Status)
	assert.True(t, got.DatabaseConnected)
	assert.Equal(t, int64(1234), got.VehicleCount)
	assert.Equal(t, fixedNow.Format(time.RFC3339), got.Timestamp)
}

func TestHealth_StoreDown(t *testing.T) {
	eng := newTestEngine(&fakeStore{countErr: errors.New("connection refused")})

	got, err := eng.Health(context.Background())
	assert.Nil(t, got)
	assert.ErrorContains(t, err, "health check")
}

func TestStats(t *testing.T) {
	eng := newTestEngine(&fakeStore{
		stats: &storage.MarketStats{TotalVehicles: 5000, UniqueMakes: 42, DataSources: 3},
	})

	got, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.TotalVehicles)
	assert.Equal(t, int64(42), got.UniqueMakes)
	assert.Equal(t, int64(3), got.DataSources)
	assert.Equal(t, fixedNow.Format(time.RFC3339), got.Timestamp)
}

func TestTopVehicles(t *testing.T) {
	store := &fakeStore{
		top: []*storage.TopVehicle{
			{Rank: 1, Make: "Volkswagen", Model: "Golf", Count: 310, SampleURL: "https://listings.example/golf"},
			{Rank: 2, Make: "Audi", Model: "A4", Count: 180, SampleURL: "https://listings.example/a4"},
		},
	}
	eng := newTestEngine(store)

	got, err := eng.TopVehicles(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, store.topLimit)
	assert.Equal(t, 2, got.TotalReturned)
	assert.Equal(t, "Golf", got.Vehicles[0].Model)
}

func TestTopVehicles_ClampsLimit(t *testing.T) {
	store := &fakeStore{}
	eng := newTestEngine(store)

	got, err := eng.TopVehicles(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.topLimit)
	assert.NotNil(t, got.Vehicles)
	assert.Zero(t, got.TotalReturned)

	_, err = eng.TopVehicles(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 50, store.topLimit)
}
