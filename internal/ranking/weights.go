// Package ranking blends match, deal, freshness and trust into the final
// ordering and builds the per-candidate explanation bundle.
package ranking

import "math"

// Weights blends the four ranking signals. Match and deal carry the
// ordering; freshness and trust are small nudges.
type Weights struct {
	Match     float64 `json:"match"`
	Deal      float64 `json:"deal"`
	Freshness float64 `json:"freshness"`
	Trust     float64 `json:"trust"`
}

// DefaultWeights returns the standard blend.
func DefaultWeights() Weights {
	return Weights{Match: 0.55, Deal: 0.30, Freshness: 0.10, Trust: 0.05}
}

// WithBalance shifts weight between match and deal. balance runs from -1
// (favour the deal) to +1 (favour the closest match); the match+deal mass
// stays at 0.85 so freshness and trust keep their share.
func (w Weights) WithBalance(balance float64) Weights {
	b := math.Max(-1, math.Min(1, balance))
	w.Match = clampRange(0.55+0.2*b, 0.15, 0.70)
	w.Deal = 0.85 - w.Match
	return w
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}
