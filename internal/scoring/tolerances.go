package scoring

import "math"

// Tolerances are the numeric proximity knobs a request may tune. They feed
// the similarity windows; the retrieval ladder has its own fixed steps.
type Tolerances struct {
	YearToleranceYears    float64 `json:"year_tolerance_years"`
	MileageToleranceRatio float64 `json:"mileage_tolerance_ratio"`
	MileageMinWindow      float64 `json:"mileage_min_window"`
	PowerToleranceRatio   float64 `json:"power_tolerance_ratio"`
	PowerMinWindow        float64 `json:"power_min_window"`
}

// DefaultTolerances returns the engine defaults used when the request sends
// no overrides.
func DefaultTolerances() Tolerances {
	return Tolerances{
		YearToleranceYears:    2,
		MileageToleranceRatio: 1.0,
		MileageMinWindow:      5000,
		PowerToleranceRatio:   0.15,
		PowerMinWindow:        15,
	}
}

// withFloors clamps each knob to its working minimum so a zero or negative
// request value cannot collapse a window to nothing.
func (t Tolerances) withFloors() Tolerances {
	return Tolerances{
		YearToleranceYears:    math.Max(t.YearToleranceYears, 0.1),
		MileageToleranceRatio: math.Max(t.MileageToleranceRatio, 0.01),
		MileageMinWindow:      math.Max(t.MileageMinWindow, 0),
		PowerToleranceRatio:   math.Max(t.PowerToleranceRatio, 0.01),
		PowerMinWindow:        math.Max(t.PowerMinWindow, 0),
	}
}
