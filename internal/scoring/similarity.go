// Package scoring implements the hybrid match model (categorical, numeric
// and textual axes) and the cohort deal model. Scores live in [0,1] and every
// result carries a component breakdown for the explanation layer.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/normalize"
)

// Categorical field weights. These are fixed: the fields are hard-locked at
// retrieval time, so the categorical axis mostly confirms the lock and
// absorbs normalisation drift.
const (
	makeModelWeight     = 0.25
	bodyWeight          = 0.20
	fuelWeight          = 0.20
	transmissionWeight  = 0.15
	exteriorColorWeight = 0.20
)

// AxisWeights blends the three similarity axes.
type AxisWeights struct {
	Categorical float64 `json:"categorical"`
	Numeric     float64 `json:"numeric"`
	Text        float64 `json:"text"`
}

func defaultAxisWeights() AxisWeights {
	return AxisWeights{Categorical: 0.45, Numeric: 0.25, Text: 0.30}
}

func (w AxisWeights) normalised() AxisWeights {
	total := w.Categorical + w.Numeric + w.Text
	if total <= 0 {
		w = defaultAxisWeights()
		total = w.Categorical + w.Numeric + w.Text
	}
	return AxisWeights{
		Categorical: w.Categorical / total,
		Numeric:     w.Numeric / total,
		Text:        w.Text / total,
	}
}

// NumericWeights blends the numeric proximity fields.
type NumericWeights struct {
	Age     float64 `json:"age"`
	Mileage float64 `json:"mileage"`
	Power   float64 `json:"power"`
}

func defaultNumericWeights() NumericWeights {
	return NumericWeights{Age: 0.40, Mileage: 0.40, Power: 0.20}
}

func (w NumericWeights) normalised() NumericWeights {
	total := w.Age + w.Mileage + w.Power
	if total <= 0 {
		w = defaultNumericWeights()
		total = w.Age + w.Mileage + w.Power
	}
	return NumericWeights{Age: w.Age / total, Mileage: w.Mileage / total, Power: w.Power / total}
}

// TextWeights blends feature overlap against raw token overlap.
type TextWeights struct {
	FeatureOverlap float64 `json:"feature_overlap"`
	TokenOverlap   float64 `json:"token_overlap"`
}

func defaultTextWeights() TextWeights {
	return TextWeights{FeatureOverlap: 0.60, TokenOverlap: 0.40}
}

func (w TextWeights) normalised() TextWeights {
	total := w.FeatureOverlap + w.TokenOverlap
	if total <= 0 {
		w = defaultTextWeights()
		total = w.FeatureOverlap + w.TokenOverlap
	}
	return TextWeights{FeatureOverlap: w.FeatureOverlap / total, TokenOverlap: w.TokenOverlap / total}
}

// EngineConfig overrides the default weight groups. Zero or negative group
// totals fall back to the defaults, and every group is re-normalised to sum
// to one.
type EngineConfig struct {
	AxisWeights    AxisWeights
	NumericWeights NumericWeights
	TextWeights    TextWeights
}

// Engine scores target/candidate pairs. One engine is shared across
// requests; it holds only normalised weights and is safe for concurrent use.
type Engine struct {
	axes    AxisWeights
	numeric NumericWeights
	text    TextWeights
}

// NewEngine builds an engine from the config; NewEngine(EngineConfig{})
// yields the default weighting.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		axes:    cfg.AxisWeights.normalised(),
		numeric: cfg.NumericWeights.normalised(),
		text:    cfg.TextWeights.normalised(),
	}
}

// MatchDetails is the full component breakdown behind one match score.
type MatchDetails struct {
	MatchScore  float64            `json:"match_score"`
	Categorical CategoricalDetails `json:"categorical"`
	Numeric     NumericDetails     `json:"numeric"`
	Textual     TextDetails        `json:"textual"`
	Weights     AxisWeights        `json:"weights"`
	Penalties   map[string]float64 `json:"penalties"`
}

// CategoricalDetails carries the hard-lock confirmation axis.
type CategoricalDetails struct {
	Score       float64               `json:"score"`
	Components  CategoricalComponents `json:"components"`
	WeightTotal float64               `json:"weight_total"`
}

// CategoricalComponents lists the per-field breakdown.
type CategoricalComponents struct {
	MakeModel     CategoricalComponent `json:"make_model"`
	Body          CategoricalComponent `json:"body"`
	Fuel          CategoricalComponent `json:"fuel"`
	Transmission  CategoricalComponent `json:"transmission"`
	ExteriorColor CategoricalComponent `json:"exterior_color"`
}

// CategoricalComponent is one field's verdict with both sides' values.
type CategoricalComponent struct {
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Locked    bool    `json:"locked"`
	Target    *string `json:"target"`
	Candidate *string `json:"candidate"`
}

// NumericDetails carries the proximity axis.
type NumericDetails struct {
	Score      float64           `json:"score"`
	Components NumericComponents `json:"components"`
}

// NumericComponents lists the per-field proximity breakdown.
type NumericComponents struct {
	Age     NumericComponent `json:"age"`
	Mileage NumericComponent `json:"mileage"`
	Power   PowerComponent   `json:"power"`
}

// NumericComponent is one bounded-linear proximity verdict. Diff fields are
// null when either side lacks the value.
type NumericComponent struct {
	Score      float64  `json:"score"`
	Diff       *float64 `json:"diff"`
	SignedDiff *float64 `json:"signed_diff"`
	Window     float64  `json:"window"`
	Target     *float64 `json:"target"`
	Candidate  *float64 `json:"candidate"`
}

// PowerComponent extends the proximity verdict with the relative delta.
type PowerComponent struct {
	Score       float64  `json:"score"`
	Diff        *float64 `json:"diff"`
	SignedDiff  *float64 `json:"signed_diff"`
	Window      float64  `json:"window"`
	PercentDiff *float64 `json:"percent_diff"`
	Target      *float64 `json:"target"`
	Candidate   *float64 `json:"candidate"`
}

// TextDetails carries the description overlap axis.
type TextDetails struct {
	Score      float64        `json:"score"`
	Components TextComponents `json:"components"`
}

// TextComponents exposes both overlap ratios plus what actually matched.
type TextComponents struct {
	FeatureOverlap float64  `json:"feature_overlap"`
	TokenOverlap   float64  `json:"token_overlap"`
	FeatureHits    []string `json:"feature_hits"`
	SharedTokens   []string `json:"shared_tokens"`
}

// Score computes the blended similarity of a candidate against the target.
func (e *Engine) Score(target, candidate *listing.Vehicle, tol Tolerances) (float64, *MatchDetails) {
	floored := tol.withFloors()

	catScore, catDetails := e.categorical(target, candidate)
	numScore, numDetails := e.numericSimilarity(target, candidate, floored)
	textScore, textDetails := e.textual(target.TextProfile(), candidate.TextProfile())

	total := e.axes.Categorical*catScore + e.axes.Numeric*numScore + e.axes.Text*textScore
	final := clamp01(total)

	return final, &MatchDetails{
		MatchScore:  final,
		Categorical: catDetails,
		Numeric:     numDetails,
		Textual:     textDetails,
		Weights:     e.axes,
		Penalties:   map[string]float64{},
	}
}

func (e *Engine) categorical(target, candidate *listing.Vehicle) (float64, CategoricalDetails) {
	components := CategoricalComponents{
		MakeModel:     makeModelComponent(target, candidate),
		Body:          fieldComponent(bodyWeight, target.BodyGroup, candidate.BodyGroup),
		Fuel:          fieldComponent(fuelWeight, target.FuelGroup, candidate.FuelGroup),
		Transmission:  fieldComponent(transmissionWeight, target.TransmissionGroup, candidate.TransmissionGroup),
		ExteriorColor: fieldComponent(exteriorColorWeight, target.ColorCanonical, candidate.ColorCanonical),
	}

	weighted := 0.0
	weightTotal := 0.0
	for _, c := range []CategoricalComponent{
		components.MakeModel, components.Body, components.Fuel,
		components.Transmission, components.ExteriorColor,
	} {
		weighted += c.Weight * c.Score
		weightTotal += c.Weight
	}

	score := 0.5
	if weightTotal > 0 {
		score = weighted / weightTotal
	}
	return score, CategoricalDetails{Score: score, Components: components, WeightTotal: weightTotal}
}

// makeModelComponent requires all four values before it judges; identity is
// too important to guess on a partial pair.
func makeModelComponent(target, candidate *listing.Vehicle) CategoricalComponent {
	score := 0.5
	tMake, tModel := normValue(target.Make), normValue(target.Model)
	cMake, cModel := normValue(candidate.Make), normValue(candidate.Model)
	if tMake != "" && tModel != "" && cMake != "" && cModel != "" {
		if tMake == cMake && tModel == cModel {
			score = 1.0
		} else {
			score = 0.0
		}
	}

	targetLabel := displayName(target)
	candidateLabel := displayName(candidate)
	return CategoricalComponent{
		Score:     score,
		Weight:    makeModelWeight,
		Locked:    true,
		Target:    &targetLabel,
		Candidate: &candidateLabel,
	}
}

func fieldComponent(weight float64, target, candidate *string) CategoricalComponent {
	return CategoricalComponent{
		Score:     categoryScore(target, candidate),
		Weight:    weight,
		Locked:    true,
		Target:    target,
		Candidate: candidate,
	}
}

func categoryScore(a, b *string) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	if normalize.Fold(*a) == normalize.Fold(*b) {
		return 1.0
	}
	return 0.0
}

func (e *Engine) numericSimilarity(target, candidate *listing.Vehicle, tol Tolerances) (float64, NumericDetails) {
	yearWindow := tol.YearToleranceYears * 12

	age := NumericComponent{Score: 0.5, Window: yearWindow}
	age.Target, age.Candidate = intFloat(target.AgeMonths), intFloat(candidate.AgeMonths)
	if age.Target != nil && age.Candidate != nil {
		signed := *age.Candidate - *age.Target
		diff := math.Abs(signed)
		age.Window = math.Max(yearWindow, 1)
		age.Score = boundedSimilarity(diff, age.Window)
		age.SignedDiff, age.Diff = &signed, &diff
	}

	mileage := NumericComponent{Score: 0.5, Window: tol.MileageMinWindow}
	mileage.Target, mileage.Candidate = target.MileageKM, candidate.MileageKM
	if mileage.Target != nil && mileage.Candidate != nil {
		mileage.Window = math.Max(math.Abs(*mileage.Target)*tol.MileageToleranceRatio, tol.MileageMinWindow)
		signed := *mileage.Candidate - *mileage.Target
		diff := math.Abs(signed)
		mileage.Score = boundedSimilarity(diff, fallbackWindow(mileage.Window, tol.MileageMinWindow))
		mileage.SignedDiff, mileage.Diff = &signed, &diff
	}

	power := PowerComponent{Score: 0.5, Window: tol.PowerMinWindow}
	power.Target, power.Candidate = target.PowerKW, candidate.PowerKW
	if power.Target != nil && power.Candidate != nil {
		power.Window = math.Max(math.Abs(*power.Target)*tol.PowerToleranceRatio, tol.PowerMinWindow)
		signed := *power.Candidate - *power.Target
		diff := math.Abs(signed)
		power.Score = boundedSimilarity(diff, fallbackWindow(power.Window, tol.PowerMinWindow))
		pct := signed / math.Max(*power.Target, 1) * 100
		power.SignedDiff, power.Diff, power.PercentDiff = &signed, &diff, &pct
	}

	weighted := e.numeric.Age*age.Score + e.numeric.Mileage*mileage.Score + e.numeric.Power*power.Score
	weightTotal := e.numeric.Age + e.numeric.Mileage + e.numeric.Power

	score := 0.5
	if weightTotal > 0 {
		score = weighted / weightTotal
	}
	return score, NumericDetails{
		Score:      score,
		Components: NumericComponents{Age: age, Mileage: mileage, Power: power},
	}
}

func (e *Engine) textual(target, candidate *normalize.TextProfile) (float64, TextDetails) {
	tokenOverlap, sharedTokens := jaccard(target.Tokens, candidate.Tokens)
	featureOverlap, sharedFeatures := jaccard(target.Features, candidate.Features)

	score := e.text.FeatureOverlap*featureOverlap + e.text.TokenOverlap*tokenOverlap

	labels := make([]string, 0, len(sharedFeatures))
	for _, key := range sharedFeatures {
		labels = append(labels, normalize.OptionLabel(key))
	}
	if len(sharedTokens) > 10 {
		sharedTokens = sharedTokens[:10]
	}

	return score, TextDetails{
		Score: score,
		Components: TextComponents{
			FeatureOverlap: featureOverlap,
			TokenOverlap:   tokenOverlap,
			FeatureHits:    labels,
			SharedTokens:   sharedTokens,
		},
	}
}

// jaccard returns the overlap ratio and the sorted intersection. Two empty
// sets read as neutral 0.5 rather than a perfect match.
func jaccard(a, b map[string]struct{}) (float64, []string) {
	intersection := make([]string, 0)
	union := len(b)
	for item := range a {
		if _, ok := b[item]; ok {
			intersection = append(intersection, item)
		} else {
			union++
		}
	}
	sort.Strings(intersection)
	if union == 0 {
		return 0.5, intersection
	}
	return float64(len(intersection)) / float64(union), intersection
}

func boundedSimilarity(diff, window float64) float64 {
	if window <= 0 {
		return 0.5
	}
	return clamp01(1 - diff/window)
}

// fallbackWindow guards the degenerate zero-window case so a present pair
// never scores through a division by zero.
func fallbackWindow(window, minWindow float64) float64 {
	if window > 0 {
		return window
	}
	if minWindow > 0 {
		return minWindow
	}
	return 1
}

func normValue(p *string) string {
	if p == nil {
		return ""
	}
	return normalize.Fold(*p)
}

func displayName(v *listing.Vehicle) string {
	return strings.TrimSpace(strDeref(v.Make) + " " + strDeref(v.Model))
}

func intFloat(p *int) *float64 {
	if p == nil {
		return nil
	}
	f := float64(*p)
	return &f
}

func strDeref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
