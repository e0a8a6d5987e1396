package scoring

import "math"

// DealInputs positions one candidate against the cohort price distribution.
// Pointer fields are unknown when nil.
type DealInputs struct {
	Price            *float64
	Percentile       *float64
	MedianPrice      *float64
	TargetPrice      *float64
	TargetMileage    *float64
	CandidateMileage *float64
	CohortSize       int
}

// DealDetails is the component breakdown behind one deal score.
type DealDetails struct {
	PricePercentile *float64       `json:"price_percentile"`
	MedianPrice     *float64       `json:"median_price"`
	MileageRatio    *float64       `json:"mileage_ratio"`
	DiscountPct     *float64       `json:"discount_pct"`
	ComparableCount int            `json:"comparable_count"`
	Components      DealComponents `json:"components"`
}

// DealComponents holds the two halves of the blend. The comparable half is
// reported after the mileage adjustment and before clamping.
type DealComponents struct {
	Comparable float64 `json:"comparable"`
	Hedonic    float64 `json:"hedonic"`
}

// DealScore rates how good a deal the candidate is within its cohort:
// a comparable component from the cohort price distribution (median
// discount through a sigmoid, percentile as fallback, softly adjusted for
// mileage) blended half-and-half with a hedonic component against the
// target's own price. A candidate without a price is neutral 0.5.
func DealScore(in DealInputs) (float64, *DealDetails) {
	if in.Price == nil {
		return 0.5, &DealDetails{
			PricePercentile: in.Percentile,
			MedianPrice:     in.MedianPrice,
			ComparableCount: in.CohortSize,
			Components:      DealComponents{Comparable: 0.5, Hedonic: 0.5},
		}
	}
	price := *in.Price

	comparable := 0.5
	if in.Percentile != nil {
		comparable = clamp01(1 - *in.Percentile)
	}

	var discountPct *float64
	if in.MedianPrice != nil && *in.MedianPrice > 0 {
		discount := (*in.MedianPrice - price) / *in.MedianPrice
		comparable = sigmoid(6 * discount)
		pct := discount * 100
		discountPct = &pct
	}

	var mileageRatio *float64
	if nonZero(in.TargetMileage) && nonZero(in.CandidateMileage) {
		ratio := (*in.CandidateMileage - *in.TargetMileage) / math.Max(*in.TargetMileage, 1)
		mileageRatio = &ratio
		if ratio > 0 {
			comparable -= math.Min(ratio/1.5, 1) * 0.25
		} else {
			comparable += math.Min(math.Abs(ratio)/1.5, 1) * 0.15
		}
	}

	hedonic := comparable
	if in.TargetPrice != nil && *in.TargetPrice > 0 {
		hedonic = sigmoid(6 * (*in.TargetPrice - price) / *in.TargetPrice)
	}

	deal := clamp01(0.5*comparable + 0.5*hedonic)
	return deal, &DealDetails{
		PricePercentile: in.Percentile,
		MedianPrice:     in.MedianPrice,
		MileageRatio:    mileageRatio,
		DiscountPct:     discountPct,
		ComparableCount: in.CohortSize,
		Components:      DealComponents{Comparable: comparable, Hedonic: hedonic},
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func nonZero(p *float64) bool {
	return p != nil && *p != 0
}
