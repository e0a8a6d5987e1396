package ranking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/scoring"
)

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int { return &i }

// cohortVehicle builds a fully populated listing; mutators override fields.
func cohortVehicle(id string, mutate ...func(*listing.Vehicle)) *listing.Vehicle {
	v := &listing.Vehicle{
		ID:                id,
		Make:              strPtr("Volkswagen"),
		Model:             strPtr("Golf"),
		BodyGroup:         strPtr("hatchback"),
		FuelGroup:         strPtr("petrol"),
		TransmissionGroup: strPtr("automatic"),
		ColorCanonical:    strPtr("black"),
		AgeMonths:         intPtr(60),
		MileageKM:         floatPtr(88000),
		PowerKW:           floatPtr(110),
		PriceEUR:          floatPtr(18500),
		Description:       "Sitzheizung und Panoramadach",
		Images:            []string{"https://img.example/1.jpg"},
		FreshnessDays:     floatPtr(0),
	}
	for _, m := range mutate {
		m(v)
	}
	return v
}

// weakVehicle shares nothing with the cohortVehicle target beyond the make,
// which pushes its similarity well under the quality floor.
func weakVehicle(id string) *listing.Vehicle {
	return cohortVehicle(id, func(v *listing.Vehicle) {
		v.Model = strPtr("Polo")
		v.BodyGroup = strPtr("suv")
		v.FuelGroup = strPtr("diesel")
		v.TransmissionGroup = strPtr("manual")
		v.ColorCanonical = strPtr("white")
		v.AgeMonths = nil
		v.MileageKM = nil
		v.PowerKW = nil
		v.Description = ""
	})
}

func newTestRanker() *Ranker {
	return NewRanker(scoring.NewEngine(scoring.EngineConfig{}), observability.DefaultLogger())
}

func byID(ranked []*RankedVehicle) map[string]*RankedVehicle {
	out := make(map[string]*RankedVehicle, len(ranked))
	for _, r := range ranked {
		out[r.ID] = r
	}
	return out
}

func TestRank_IdenticalTwin(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	twin := cohortVehicle("cand-1")

	ranked, stats := ranker.Rank(target, []*listing.Vehicle{twin}, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 1)

	got := ranked[0]
	assert.Equal(t, "cand-1", got.ID)
	assert.InDelta(t, 1.0, got.SimilarityScore, 1e-9)
	// Same price as the cohort median reads as a neutral deal.
	assert.InDelta(t, 0.5, got.DealScore, 1e-9)
	assert.InDelta(t, 1.0, deref(got.FreshnessScore), 1e-9)
	assert.InDelta(t, 1.0, got.TrustScore, 1e-9)
	assert.InDelta(t, 0.85, got.FinalScore, 1e-9)
	assert.Equal(t, got.FinalScore, got.Score)

	require.NotNil(t, got.PriceHat)
	assert.InDelta(t, 18500*1.03, *got.PriceHat, 1e-6)
	assert.Zero(t, got.Savings)
	require.NotNil(t, got.SavingsPercent)
	assert.Zero(t, *got.SavingsPercent)

	require.NotNil(t, got.RankingDetails)
	details := got.RankingDetails
	assert.InDelta(t, 1.0, details.MatchScore, 1e-9)
	assert.InDelta(t, 1.0, details.SimilarityComponents.Categorical, 1e-9)
	assert.InDelta(t, 1.0, details.SimilarityComponents.Numeric, 1e-9)
	assert.InDelta(t, 1.0, details.SimilarityComponents.Text, 1e-9)
	assert.InDelta(t, 0.45, details.Weights.Match.Categorical, 1e-9)
	assert.Equal(t, DefaultWeights(), details.Weights.Ranking)
	require.NotNil(t, details.Deal)
	assert.Equal(t, 1, details.Deal.ComparableCount)

	require.NotNil(t, got.Explanation)
	assert.Equal(t, StatusMatch, got.Explanation.HardMatches["Make & Model"].Status)
	assert.Equal(t, StatusMatch, got.Explanation.HardMatches["Body Type"].Status)
	assert.Equal(t, []string{"Heated Seats", "Panoramic Roof"}, got.Explanation.TextHits)

	assert.Equal(t, 1, stats.PricedCount)
	require.NotNil(t, stats.MedianPrice)
	assert.InDelta(t, 18500, *stats.MedianPrice, 1e-9)
}

func TestRank_OrdersByFinalScoreDesc(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(20000) })
	candidates := []*listing.Vehicle{
		cohortVehicle("overpriced", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(25000) }),
		cohortVehicle("at-market", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(20000) }),
		cohortVehicle("bargain", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(15000) }),
	}

	ranked, stats := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 3)
	assert.Equal(t, "bargain", ranked[0].ID)
	assert.Equal(t, "at-market", ranked[1].ID)
	assert.Equal(t, "overpriced", ranked[2].ID)

	// Similarity, freshness and trust are identical across the three, so
	// the spread is pure deal: sigmoid of the 25% discount either way.
	discounted := 1 / (1 + math.Exp(-1.5))
	assert.InDelta(t, 0.70+0.30*discounted, ranked[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.85, ranked[1].FinalScore, 1e-9)
	assert.InDelta(t, 0.70+0.30*(1-discounted), ranked[2].FinalScore, 1e-9)

	assert.InDelta(t, 5000, ranked[0].Savings, 1e-9)
	require.NotNil(t, ranked[0].SavingsPercent)
	assert.InDelta(t, 25, *ranked[0].SavingsPercent, 1e-9)

	require.NotNil(t, stats.MedianPrice)
	assert.InDelta(t, 20000, *stats.MedianPrice, 1e-9)
	assert.Equal(t, 3, stats.PricedCount)
}

func TestRank_StableOnTies(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	candidates := []*listing.Vehicle{
		cohortVehicle("cand-b"),
		cohortVehicle("cand-a"),
	}

	ranked, _ := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 2)
	assert.InDelta(t, ranked[0].FinalScore, ranked[1].FinalScore, 1e-12)
	assert.Equal(t, "cand-b", ranked[0].ID)
	assert.Equal(t, "cand-a", ranked[1].ID)
}

func TestRank_QualityFloorDropsWeakMatches(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	candidates := []*listing.Vehicle{
		weakVehicle("weak"),
		cohortVehicle("cand-1"),
		cohortVehicle("cand-2"),
		cohortVehicle("cand-3"),
	}

	ranked, _ := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 3)
	for _, r := range ranked {
		assert.NotEqual(t, "weak", r.ID)
		assert.GreaterOrEqual(t, r.SimilarityScore, 0.30)
	}
}

func TestRank_QualityFloorReadmitsWhenGutted(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	candidates := []*listing.Vehicle{
		weakVehicle("weak-1"),
		cohortVehicle("strong"),
		weakVehicle("weak-2"),
		weakVehicle("weak-3"),
	}

	ranked, _ := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 2)
	assert.Equal(t, "strong", ranked[0].ID)
	assert.Equal(t, "weak-1", ranked[1].ID)
	assert.Less(t, ranked[1].SimilarityScore, 0.30)
}

func TestRank_QualityFloorKeepsOneWhenAllWeak(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	candidates := []*listing.Vehicle{
		weakVehicle("weak-1"),
		weakVehicle("weak-2"),
	}

	ranked, _ := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 1)
	assert.Equal(t, "weak-1", ranked[0].ID)
}

func TestRank_EmptyCohort(t *testing.T) {
	ranker := newTestRanker()
	ranked, stats := ranker.Rank(cohortVehicle("target"), nil, scoring.DefaultTolerances(), DefaultWeights())
	assert.Empty(t, ranked)
	assert.Nil(t, stats.MedianPrice)
	assert.Zero(t, stats.PricedCount)
}

func TestRank_MissingSignalsDegrade(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	sparse := cohortVehicle("sparse", func(v *listing.Vehicle) {
		v.PriceEUR = nil
		v.MileageKM = nil
		v.PowerKW = nil
		v.AgeMonths = nil
		v.Description = ""
		v.Images = nil
		v.FreshnessDays = nil
	})

	ranked, stats := ranker.Rank(target, []*listing.Vehicle{sparse}, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 1)

	got := ranked[0]
	// Categoricals still agree, numerics and text read neutral-to-empty.
	assert.InDelta(t, 0.575, got.SimilarityScore, 1e-9)
	assert.InDelta(t, 0.5, got.DealScore, 1e-9)
	assert.Nil(t, got.FreshnessScore)
	assert.Zero(t, got.TrustScore)
	assert.Nil(t, got.PriceHat)
	assert.Zero(t, got.Savings)
	assert.InDelta(t, 0.55*0.575+0.30*0.5, got.FinalScore, 1e-9)

	assert.Nil(t, stats.MedianPrice)
	assert.Zero(t, stats.PricedCount)
	require.NotNil(t, got.Explanation)
	assert.Equal(t, 1, got.Explanation.DealView.ComparableCount)
	assert.Equal(t, scoring.DealComponents{Comparable: 0.5, Hedonic: 0.5}, got.Explanation.DealView.Components)
}

func TestRank_PercentileSpansCohort(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	prices := []float64{10000, 12000, 14000, 16000, 18000}
	candidates := make([]*listing.Vehicle, 0, len(prices))
	ids := []string{"c1", "c2", "c3", "c4", "c5"}
	for i, p := range prices {
		price := p
		candidates = append(candidates, cohortVehicle(ids[i], func(v *listing.Vehicle) {
			v.PriceEUR = &price
		}))
	}

	ranked, stats := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	require.Len(t, ranked, 5)

	indexed := byID(ranked)
	for i, id := range ids {
		got := indexed[id]
		require.NotNil(t, got, id)
		require.NotNil(t, got.RankingDetails.Deal.PricePercentile, id)
		assert.InDelta(t, float64(i)/4, *got.RankingDetails.Deal.PricePercentile, 1e-9, id)
	}

	require.NotNil(t, stats.MedianPrice)
	assert.InDelta(t, 14000, *stats.MedianPrice, 1e-9)
	assert.Equal(t, 5, stats.PricedCount)
}

func TestRank_FreshnessDecay(t *testing.T) {
	ranker := newTestRanker()
	target := cohortVehicle("target")
	candidates := []*listing.Vehicle{
		cohortVehicle("fresh", func(v *listing.Vehicle) { v.FreshnessDays = floatPtr(0) }),
		cohortVehicle("stale", func(v *listing.Vehicle) { v.FreshnessDays = floatPtr(30) }),
	}

	ranked, _ := ranker.Rank(target, candidates, scoring.DefaultTolerances(), DefaultWeights())
	indexed := byID(ranked)

	require.NotNil(t, indexed["fresh"].FreshnessScore)
	assert.InDelta(t, 1.0, *indexed["fresh"].FreshnessScore, 1e-9)
	require.NotNil(t, indexed["stale"].FreshnessScore)
	assert.InDelta(t, math.Exp(-1), *indexed["stale"].FreshnessScore, 1e-9)
	assert.Equal(t, "fresh", ranked[0].ID)
}

func TestTrustScore(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*listing.Vehicle)
		want   float64
	}{
		{name: "all present", mutate: func(v *listing.Vehicle) {}, want: 1.0},
		{
			name: "zero price counts as missing",
			mutate: func(v *listing.Vehicle) {
				v.PriceEUR = floatPtr(0)
			},
			want: 0.8,
		},
		{
			name: "no description or images",
			mutate: func(v *listing.Vehicle) {
				v.Description = ""
				v.Images = nil
			},
			want: 0.6,
		},
		{
			name: "bare listing",
			mutate: func(v *listing.Vehicle) {
				v.PriceEUR = nil
				v.MileageKM = nil
				v.PowerKW = nil
				v.Description = ""
				v.Images = nil
			},
			want: 0.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trustScore(cohortVehicle("v", tt.mutate)), 1e-9)
		})
	}
}

func TestPricePercentile(t *testing.T) {
	sorted := []float64{10000, 20000, 20000, 30000}

	tests := []struct {
		name   string
		sorted []float64
		price  *float64
		want   *float64
	}{
		{name: "nil price", sorted: sorted, price: nil, want: nil},
		{name: "empty cohort", sorted: nil, price: floatPtr(15000), want: nil},
		{name: "single price cohort", sorted: []float64{9000}, price: floatPtr(15000), want: floatPtr(0)},
		{name: "below range", sorted: sorted, price: floatPtr(5000), want: floatPtr(0)},
		{name: "duplicate lands on first", sorted: sorted, price: floatPtr(20000), want: floatPtr(1.0 / 3)},
		{name: "above range clamps", sorted: sorted, price: floatPtr(50000), want: floatPtr(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pricePercentile(tt.sorted, tt.price)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestMedianOf(t *testing.T) {
	assert.Nil(t, medianOf(nil))

	odd := medianOf([]float64{1, 2, 9})
	require.NotNil(t, odd)
	assert.InDelta(t, 2, *odd, 1e-9)

	even := medianOf([]float64{1, 2, 3, 10})
	require.NotNil(t, even)
	assert.InDelta(t, 2.5, *even, 1e-9)
}

func TestMedianPrice(t *testing.T) {
	assert.Nil(t, MedianPrice(nil))

	ranked := []*RankedVehicle{
		{Vehicle: cohortVehicle("a", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(30000) })},
		{Vehicle: cohortVehicle("b", func(v *listing.Vehicle) { v.PriceEUR = nil })},
		{Vehicle: cohortVehicle("c", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(10000) })},
	}
	got := MedianPrice(ranked)
	require.NotNil(t, got)
	assert.InDelta(t, 20000, *got, 1e-9)
}

func TestSortedPrices(t *testing.T) {
	candidates := []*listing.Vehicle{
		cohortVehicle("a", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(30000) }),
		cohortVehicle("b", func(v *listing.Vehicle) { v.PriceEUR = nil }),
		cohortVehicle("c", func(v *listing.Vehicle) { v.PriceEUR = floatPtr(12000) }),
	}
	assert.Equal(t, []float64{12000, 30000}, sortedPrices(candidates))
}
