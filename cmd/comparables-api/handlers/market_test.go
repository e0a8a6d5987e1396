package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/storage"
	"github.com/carmarket/comparables-engine/pkg/engine"
)

func newMarketRouter(store *fakeStore) http.Handler {
	h := NewMarketHandler(observability.DefaultLogger(), newTestEngine(store))
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/top-vehicles", h.TopVehicles)
	return r
}

func TestHealth(t *testing.T) {
	router := newMarketRouter(&fakeStore{count: 1234})

	rec := doGet(t, router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status engine.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.DatabaseConnected)
	assert.Equal(t, int64(1234), status.VehicleCount)
	assert.Equal(t, fixedNow.Format(time.RFC3339), status.Timestamp)
}

func TestHealth_Unhealthy(t *testing.T) {
	router := newMarketRouter(&fakeStore{countErr: errors.New("connection refused")})

	rec := doGet(t, router, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var failure healthFailure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	assert.Equal(t, "unhealthy", failure.Status)
	assert.False(t, failure.DatabaseConnected)
	assert.Contains(t, failure.Error, "connection refused")
}

func TestStats(t *testing.T) {
	router := newMarketRouter(&fakeStore{
		stats: &storage.MarketStats{TotalVehicles: 5000, UniqueMakes: 42, DataSources: 3},
	})

	rec := doGet(t, router, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats engine.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(5000), stats.TotalVehicles)
	assert.Equal(t, int64(42), stats.UniqueMakes)
	assert.Equal(t, int64(3), stats.DataSources)
}

func TestStats_StoreError(t *testing.T) {
	router := newMarketRouter(&fakeStore{statsErr: errors.New("relation does not exist")})

	rec := doGet(t, router, "/stats")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "relation does not exist")
}

func TestTopVehicles(t *testing.T) {
	store := &fakeStore{
		top: []*storage.TopVehicle{
			{Rank: 1, Make: "Volkswagen", Model: "Golf", Count: 310, SampleURL: "https://listings.example/golf"},
			{Rank: 2, Make: "Audi", Model: "A4", Count: 180, SampleURL: "https://listings.example/a4"},
		},
	}
	router := newMarketRouter(store)

	rec := doGet(t, router, "/top-vehicles")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, store.topLimit)

	var top engine.TopVehicles
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	assert.Equal(t, 2, top.TotalReturned)
	require.Len(t, top.Vehicles, 2)
	assert.Equal(t, "Golf", top.Vehicles[0].Model)
}

func TestTopVehicles_LimitParsing(t *testing.T) {
	store := &fakeStore{}
	router := newMarketRouter(store)

	rec := doGet(t, router, "/top-vehicles?limit=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, store.topLimit)

	rec = doGet(t, router, "/top-vehicles?limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, store.topLimit)

	rec = doGet(t, router, "/top-vehicles?limit=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.topLimit)
}
