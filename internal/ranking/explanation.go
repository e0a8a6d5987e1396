package ranking

import (
	"math"

	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/scoring"
)

// Hard-match statuses. "unknown" is reserved for fields the breakdown could
// not judge at all.
const (
	StatusMatch    = "match"
	StatusMismatch = "mismatch"
	StatusPartial  = "partial"
	StatusUnknown  = "unknown"
)

// Explanation is the reader-facing digest of one candidate: why it matched,
// how close it sits and what the deal looks like.
type Explanation struct {
	HardMatches       map[string]HardMatch `json:"hard_matches"`
	TextHits          []string             `json:"text_hits"`
	SharedTokens      []string             `json:"shared_tokens"`
	Proximities       Proximities          `json:"proximities"`
	DealView          DealView             `json:"deal_view"`
	FreshnessDays     *float64             `json:"freshness_days"`
	TargetPriceEUR    *float64             `json:"target_price_eur"`
	CandidatePriceEUR *float64             `json:"candidate_price_eur"`
}

// HardMatch shows both sides of one identity field next to its verdict.
type HardMatch struct {
	Status    string  `json:"status"`
	Target    *string `json:"target"`
	Candidate *string `json:"candidate"`
	Score     float64 `json:"score"`
}

// Proximities are the signed numeric deltas, rounded for display.
type Proximities struct {
	AgeMonthsDelta *float64 `json:"age_months_delta"`
	MileageDelta   *float64 `json:"mileage_delta"`
	PowerDeltaPct  *float64 `json:"power_delta_pct"`
}

// DealView is the explanation's slice of the deal breakdown.
type DealView struct {
	DiscountPct     *float64               `json:"discount_pct"`
	PricePercentile *float64               `json:"price_percentile"`
	MedianPrice     *float64               `json:"median_price"`
	ComparableCount int                    `json:"comparable_count"`
	SavingsEUR      float64                `json:"savings_eur"`
	Components      scoring.DealComponents `json:"components"`
}

// buildExplanation digests the scoring breakdowns into the serving shape.
// cohortSize backstops the comparable count when no candidate carried a
// price.
func buildExplanation(target, candidate *listing.Vehicle, match *scoring.MatchDetails, deal *scoring.DealDetails, cohortSize int, savings float64) *Explanation {
	cat := match.Categorical.Components
	num := match.Numeric.Components
	text := match.Textual.Components

	comparableCount := deal.ComparableCount
	if comparableCount == 0 {
		comparableCount = cohortSize
	}

	return &Explanation{
		HardMatches: map[string]HardMatch{
			"Make & Model": hardMatch(cat.MakeModel),
			"Body Type":    hardMatch(cat.Body),
		},
		TextHits:     head(text.FeatureHits, 5),
		SharedTokens: head(text.SharedTokens, 5),
		Proximities: Proximities{
			AgeMonthsDelta: roundN(num.Age.SignedDiff, 2),
			MileageDelta:   roundN(num.Mileage.SignedDiff, 2),
			PowerDeltaPct:  roundN(num.Power.PercentDiff, 2),
		},
		DealView: DealView{
			DiscountPct:     roundN(deal.DiscountPct, 2),
			PricePercentile: deal.PricePercentile,
			MedianPrice:     deal.MedianPrice,
			ComparableCount: comparableCount,
			SavingsEUR:      math.Round(savings),
			Components:      deal.Components,
		},
		FreshnessDays:     roundN(candidate.FreshnessDays, 1),
		TargetPriceEUR:    target.PriceEUR,
		CandidatePriceEUR: candidate.PriceEUR,
	}
}

func hardMatch(c scoring.CategoricalComponent) HardMatch {
	return HardMatch{
		Status:    matchStatus(c.Score),
		Target:    c.Target,
		Candidate: c.Candidate,
		Score:     c.Score,
	}
}

func matchStatus(score float64) string {
	switch {
	case score >= 0.99:
		return StatusMatch
	case score <= 0.01:
		return StatusMismatch
	default:
		return StatusPartial
	}
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// roundN rounds through a null pointer: missing stays missing.
func roundN(p *float64, digits int) *float64 {
	if p == nil {
		return nil
	}
	scale := math.Pow(10, float64(digits))
	v := math.Round(*p*scale) / scale
	return &v
}
