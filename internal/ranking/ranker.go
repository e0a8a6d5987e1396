package ranking

import (
	"math"
	"sort"

	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/scoring"
)

// minSimilarity is the quality floor. Candidates matching below it are
// dropped after ranking unless that would gut the result set.
const minSimilarity = 0.30

// freshnessDecayDays is the e-folding time of the freshness signal: a
// month-old listing scores 1/e.
const freshnessDecayDays = 30

// Ranker scores a retrieved cohort against the target and orders it by the
// blended final score. One ranker is shared across requests.
type Ranker struct {
	engine *scoring.Engine
	logger *observability.Logger
}

// NewRanker wires a ranker on top of a similarity engine.
func NewRanker(engine *scoring.Engine, logger *observability.Logger) *Ranker {
	return &Ranker{engine: engine, logger: logger}
}

// RankedVehicle is one candidate with its scores, breakdowns and
// explanation attached. The listing fields marshal inline.
type RankedVehicle struct {
	*listing.Vehicle

	SimilarityScore float64         `json:"similarity_score"`
	DealScore       float64         `json:"deal_score"`
	FinalScore      float64         `json:"final_score"`
	Score           float64         `json:"score"`
	PriceHat        *float64        `json:"price_hat"`
	Savings         float64         `json:"savings"`
	SavingsPercent  *float64        `json:"savings_percent"`
	FreshnessScore  *float64        `json:"freshness_score"`
	TrustScore      float64         `json:"trust_score"`
	RankingDetails  *RankingDetails `json:"ranking_details"`
	Explanation     *Explanation    `json:"explanation"`
}

// RankingDetails exposes everything behind one final score.
type RankingDetails struct {
	MatchScore            float64                       `json:"match_score"`
	SimilarityComponents  SimilarityComponents          `json:"similarity_components"`
	CategoricalComponents scoring.CategoricalComponents `json:"categorical_components"`
	NumericComponents     scoring.NumericComponents     `json:"numeric_components"`
	TextComponents        scoring.TextComponents        `json:"text_components"`
	Weights               WeightBundle                  `json:"weights"`
	Deal                  *scoring.DealDetails          `json:"deal"`
}

// SimilarityComponents are the three axis scores of the match model.
type SimilarityComponents struct {
	Categorical float64 `json:"categorical"`
	Numeric     float64 `json:"numeric"`
	Text        float64 `json:"text"`
}

// WeightBundle pairs the match-axis weights with the ranking blend.
type WeightBundle struct {
	Match   scoring.AxisWeights `json:"match"`
	Ranking Weights             `json:"ranking"`
}

// CohortStats summarises the price distribution the deal model ranked
// against. PricedCount is the number of candidates that carried a price.
type CohortStats struct {
	MedianPrice *float64
	PricedCount int
}

// Rank scores every candidate, sorts by final score and applies the quality
// floor. The returned order is the serving order; callers slice the top N.
func (r *Ranker) Rank(target *listing.Vehicle, candidates []*listing.Vehicle, tol scoring.Tolerances, weights Weights) ([]*RankedVehicle, CohortStats) {
	prices := sortedPrices(candidates)
	median := medianOf(prices)
	stats := CohortStats{MedianPrice: median, PricedCount: len(prices)}

	ranked := make([]*RankedVehicle, 0, len(candidates))
	for _, cand := range candidates {
		matchScore, matchDetails := r.engine.Score(target, cand, tol)
		dealScore, dealDetails := scoring.DealScore(scoring.DealInputs{
			Price:            cand.PriceEUR,
			Percentile:       pricePercentile(prices, cand.PriceEUR),
			MedianPrice:      median,
			TargetPrice:      target.PriceEUR,
			TargetMileage:    target.MileageKM,
			CandidateMileage: cand.MileageKM,
			CohortSize:       len(prices),
		})

		savings := 0.0
		if nonZero(target.PriceEUR) && nonZero(cand.PriceEUR) {
			savings = *target.PriceEUR - *cand.PriceEUR
		}

		freshness := freshnessScore(cand.FreshnessDays)
		trust := trustScore(cand)
		final := clamp01(weights.Match*matchScore +
			weights.Deal*dealScore +
			weights.Freshness*deref(freshness) +
			weights.Trust*trust)

		ranked = append(ranked, &RankedVehicle{
			Vehicle:         cand,
			SimilarityScore: matchScore,
			DealScore:       dealScore,
			FinalScore:      final,
			Score:           final,
			PriceHat:        priceHat(cand.PriceEUR),
			Savings:         savings,
			SavingsPercent:  savingsPercent(savings, target.PriceEUR),
			FreshnessScore:  freshness,
			TrustScore:      trust,
			RankingDetails: &RankingDetails{
				MatchScore: matchScore,
				SimilarityComponents: SimilarityComponents{
					Categorical: matchDetails.Categorical.Score,
					Numeric:     matchDetails.Numeric.Score,
					Text:        matchDetails.Textual.Score,
				},
				CategoricalComponents: matchDetails.Categorical.Components,
				NumericComponents:     matchDetails.Numeric.Components,
				TextComponents:        matchDetails.Textual.Components,
				Weights:               WeightBundle{Match: matchDetails.Weights, Ranking: weights},
				Deal:                  dealDetails,
			},
			Explanation: buildExplanation(target, cand, matchDetails, dealDetails, len(candidates), savings),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return r.applyQualityFloor(ranked), stats
}

// applyQualityFloor drops weak matches, but re-admits the best half of them
// when the floor alone would discard most of the cohort.
func (r *Ranker) applyQualityFloor(ranked []*RankedVehicle) []*RankedVehicle {
	if len(ranked) == 0 {
		return ranked
	}
	above := make([]*RankedVehicle, 0, len(ranked))
	below := make([]*RankedVehicle, 0)
	for _, c := range ranked {
		if c.SimilarityScore >= minSimilarity {
			above = append(above, c)
		} else {
			below = append(below, c)
		}
	}
	if float64(len(above)) >= float64(len(ranked))*0.5 {
		return above
	}

	keep := len(below) / 2
	if keep < 1 {
		keep = 1
	}
	r.logger.Debug().
		Int("above_floor", len(above)).
		Int("readmitted", keep).
		Msg("Quality floor re-admitted weak matches")
	return append(above, below[:keep]...)
}

// MedianPrice returns the median asking price across a ranked set, nil when
// no entry carries a price. Response metadata reports it over the served
// cohort, which the quality floor may have trimmed.
func MedianPrice(ranked []*RankedVehicle) *float64 {
	prices := make([]float64, 0, len(ranked))
	for _, r := range ranked {
		if r.PriceEUR != nil {
			prices = append(prices, *r.PriceEUR)
		}
	}
	sort.Float64s(prices)
	return medianOf(prices)
}

// sortedPrices collects the non-null candidate prices in ascending order.
func sortedPrices(candidates []*listing.Vehicle) []float64 {
	prices := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		if c.PriceEUR != nil {
			prices = append(prices, *c.PriceEUR)
		}
	}
	sort.Float64s(prices)
	return prices
}

func medianOf(sorted []float64) *float64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	m := sorted[n/2]
	if n%2 == 0 {
		m = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return &m
}

// pricePercentile positions a price inside the sorted cohort vector. A
// single-element cohort reads as the bottom of the range.
func pricePercentile(sorted []float64, price *float64) *float64 {
	if price == nil || len(sorted) == 0 {
		return nil
	}
	p := 0.0
	if len(sorted) > 1 {
		pos := sort.SearchFloat64s(sorted, *price)
		p = clamp01(float64(pos) / float64(len(sorted)-1))
	}
	return &p
}

func freshnessScore(days *float64) *float64 {
	if days == nil {
		return nil
	}
	score := math.Exp(-*days / freshnessDecayDays)
	return &score
}

// trustScore counts how many of the five load-bearing fields the listing
// actually fills. Zero-valued numerics count as missing.
func trustScore(v *listing.Vehicle) float64 {
	present := 0
	for _, ok := range []bool{
		nonZero(v.PriceEUR),
		nonZero(v.MileageKM),
		nonZero(v.PowerKW),
		v.Description != "",
		len(v.Images) > 0,
	} {
		if ok {
			present++
		}
	}
	return float64(present) / 5
}

// priceHat is the naive fair-value anchor: asking price plus a flat 3%
// negotiation margin.
func priceHat(price *float64) *float64 {
	if !nonZero(price) {
		return nil
	}
	hat := *price * 1.03
	return &hat
}

func savingsPercent(savings float64, targetPrice *float64) *float64 {
	if targetPrice == nil || *targetPrice <= 0 {
		return nil
	}
	pct := savings / *targetPrice * 100
	return &pct
}

func nonZero(p *float64) bool {
	return p != nil && *p != 0
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
