package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/comparables-engine/internal/listing"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

// scoredVehicle builds a fully populated vehicle; mutate hooks adjust single
// fields per case.
func scoredVehicle(id string, mutate ...func(*listing.Vehicle)) *listing.Vehicle {
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
	}
	for _, m := range mutate {
		m(v)
	}
	return v
}

func TestScore_IdenticalVehicles(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a")
	candidate := scoredVehicle("veh-b")

	score, details := engine.Score(target, candidate, DefaultTolerances())

	assert.InDelta(t, 1.0, score, 1e-9)
	assert.InDelta(t, 1.0, details.MatchScore, 1e-9)
	assert.InDelta(t, 1.0, details.Categorical.Score, 1e-9)
	assert.InDelta(t, 1.0, details.Numeric.Score, 1e-9)
	assert.InDelta(t, 1.0, details.Textual.Score, 1e-9)
	assert.Empty(t, details.Penalties)

	assert.InDelta(t, 1.0, details.Categorical.WeightTotal, 1e-9)
	require.NotNil(t, details.Categorical.Components.MakeModel.Target)
	assert.Equal(t, "Volkswagen Golf", *details.Categorical.Components.MakeModel.Target)

	age := details.Numeric.Components.Age
	assert.InDelta(t, 24, age.Window, 1e-9, "two year tolerance in months")
	require.NotNil(t, age.Diff)
	assert.Zero(t, *age.Diff)
	assert.InDelta(t, 88000, details.Numeric.Components.Mileage.Window, 1e-9)
	assert.InDelta(t, 16.5, details.Numeric.Components.Power.Window, 1e-9)
	require.NotNil(t, details.Numeric.Components.Power.PercentDiff)
	assert.Zero(t, *details.Numeric.Components.Power.PercentDiff)

	text := details.Textual.Components
	assert.InDelta(t, 1.0, text.TokenOverlap, 1e-9)
	assert.InDelta(t, 1.0, text.FeatureOverlap, 1e-9)
	assert.Equal(t, []string{"Heated Seats", "Panoramic Roof"}, text.FeatureHits)
	assert.Contains(t, text.SharedTokens, "sitzheizung")
}

func TestScore_SparseCandidateIsNeutral(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a")
	candidate := &listing.Vehicle{ID: "veh-b"}

	score, details := engine.Score(target, candidate, DefaultTolerances())

	// Every categorical and numeric field reads 0.5; text overlap against an
	// empty description is 0.
	assert.InDelta(t, 0.45*0.5+0.25*0.5+0.30*0, score, 1e-9)
	assert.InDelta(t, 0.5, details.Categorical.Score, 1e-9)
	assert.InDelta(t, 0.5, details.Categorical.Components.MakeModel.Score, 1e-9)
	assert.InDelta(t, 0.5, details.Numeric.Score, 1e-9)
	assert.Zero(t, details.Textual.Score)

	age := details.Numeric.Components.Age
	assert.Nil(t, age.Diff)
	assert.Nil(t, age.Candidate)
	assert.InDelta(t, 24, age.Window, 1e-9)
	assert.Nil(t, details.Numeric.Components.Power.PercentDiff)
}

func TestScore_BothDescriptionsEmpty(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) { v.Description = "" })
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) { v.Description = "" })

	score, details := engine.Score(target, candidate, DefaultTolerances())

	assert.InDelta(t, 0.5, details.Textual.Components.TokenOverlap, 1e-9)
	assert.InDelta(t, 0.5, details.Textual.Components.FeatureOverlap, 1e-9)
	assert.InDelta(t, 0.45+0.25+0.30*0.5, score, 1e-9)
}

func TestScore_ColourMismatch(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) { v.Description = "" })
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) {
		v.Description = ""
		v.ColorCanonical = strPtr("white")
	})

	score, details := engine.Score(target, candidate, DefaultTolerances())

	colour := details.Categorical.Components.ExteriorColor
	assert.Zero(t, colour.Score)
	assert.Equal(t, "white", *colour.Candidate)
	assert.InDelta(t, 0.80, details.Categorical.Score, 1e-9)
	assert.InDelta(t, 0.45*0.80+0.25*1.0+0.30*0.5, score, 1e-9)
}

func TestScore_MakeModelNeedsBothSides(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a")

	differentModel := scoredVehicle("veh-b", func(v *listing.Vehicle) { v.Model = strPtr("Polo") })
	_, details := engine.Score(target, differentModel, DefaultTolerances())
	assert.Zero(t, details.Categorical.Components.MakeModel.Score)

	missingModel := scoredVehicle("veh-c", func(v *listing.Vehicle) { v.Model = nil })
	_, details = engine.Score(target, missingModel, DefaultTolerances())
	assert.InDelta(t, 0.5, details.Categorical.Components.MakeModel.Score, 1e-9)
}

func TestScore_CategoricalEqualityIgnoresAccentsAndCase(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) { v.BodyGroup = strPtr("Geländewagen") })
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) { v.BodyGroup = strPtr("gelandewagen") })

	_, details := engine.Score(target, candidate, DefaultTolerances())

	assert.InDelta(t, 1.0, details.Categorical.Components.Body.Score, 1e-9)
}

func TestScore_NumericHalfWindow(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) {
		v.Description = ""
		v.MileageKM = floatPtr(100000)
		v.PowerKW = floatPtr(100)
	})
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) {
		v.Description = ""
		v.AgeMonths = intPtr(72)
		v.MileageKM = floatPtr(150000)
		v.PowerKW = floatPtr(107.5)
	})

	score, details := engine.Score(target, candidate, DefaultTolerances())

	age := details.Numeric.Components.Age
	assert.InDelta(t, 0.5, age.Score, 1e-9, "12 months into a 24 month window")
	assert.InDelta(t, 12, *age.SignedDiff, 1e-9)

	mileage := details.Numeric.Components.Mileage
	assert.InDelta(t, 0.5, mileage.Score, 1e-9, "50000 km into a 100000 km window")
	assert.InDelta(t, 50000, *mileage.SignedDiff, 1e-9)

	power := details.Numeric.Components.Power
	assert.InDelta(t, 0.5, power.Score, 1e-9, "7.5 kW into a 15 kW window")
	assert.InDelta(t, 7.5, *power.PercentDiff, 1e-9)

	assert.InDelta(t, 0.5, details.Numeric.Score, 1e-9)
	assert.InDelta(t, 0.45*1.0+0.25*0.5+0.30*0.5, score, 1e-9)
}

func TestScore_NumericOutsideWindowFloorsAtZero(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) { v.MileageKM = floatPtr(100000) })
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) { v.MileageKM = floatPtr(350000) })

	_, details := engine.Score(target, candidate, DefaultTolerances())

	assert.Zero(t, details.Numeric.Components.Mileage.Score)
}

func TestScore_TextOverlap(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) {
		v.Description = "Sitzheizung Panoramadach DAB+ Navi"
	})
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) {
		v.Description = "Sitzheizung CarPlay Navi"
	})

	_, details := engine.Score(target, candidate, DefaultTolerances())

	text := details.Textual.Components
	assert.InDelta(t, 0.25, text.FeatureOverlap, 1e-9, "heated seats out of four distinct options")
	assert.InDelta(t, 0.4, text.TokenOverlap, 1e-9)
	assert.Equal(t, []string{"Heated Seats"}, text.FeatureHits)
	assert.Equal(t, []string{"navi", "sitzheizung"}, text.SharedTokens)
	assert.InDelta(t, 0.60*0.25+0.40*0.4, details.Textual.Score, 1e-9)
}

func TestScore_AxisWeightOverrides(t *testing.T) {
	engine := NewEngine(EngineConfig{AxisWeights: AxisWeights{Categorical: 1}})
	target := scoredVehicle("veh-a", func(v *listing.Vehicle) { v.Description = "" })
	candidate := scoredVehicle("veh-b", func(v *listing.Vehicle) {
		v.Description = ""
		v.ColorCanonical = strPtr("white")
	})

	score, details := engine.Score(target, candidate, DefaultTolerances())

	assert.InDelta(t, 1.0, details.Weights.Categorical, 1e-9)
	assert.Zero(t, details.Weights.Numeric)
	assert.InDelta(t, 0.80, score, 1e-9, "only the categorical axis counts")
}

func TestScore_NonPositiveWeightsFallBackToDefaults(t *testing.T) {
	engine := NewEngine(EngineConfig{AxisWeights: AxisWeights{Categorical: -2}})
	target := scoredVehicle("veh-a")
	candidate := scoredVehicle("veh-b")

	_, details := engine.Score(target, candidate, DefaultTolerances())

	assert.InDelta(t, 0.45, details.Weights.Categorical, 1e-9)
	assert.InDelta(t, 0.25, details.Weights.Numeric, 1e-9)
	assert.InDelta(t, 0.30, details.Weights.Text, 1e-9)
}

func TestTolerances_WithFloors(t *testing.T) {
	floored := Tolerances{}.withFloors()

	assert.InDelta(t, 0.1, floored.YearToleranceYears, 1e-9)
	assert.InDelta(t, 0.01, floored.MileageToleranceRatio, 1e-9)
	assert.Zero(t, floored.MileageMinWindow)
	assert.InDelta(t, 0.01, floored.PowerToleranceRatio, 1e-9)
	assert.Zero(t, floored.PowerMinWindow)

	unchanged := DefaultTolerances().withFloors()
	assert.Equal(t, DefaultTolerances(), unchanged)
}

func TestBoundedSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, boundedSimilarity(0, 10), 1e-9)
	assert.InDelta(t, 0.5, boundedSimilarity(5, 10), 1e-9)
	assert.Zero(t, boundedSimilarity(10, 10))
	assert.Zero(t, boundedSimilarity(25, 10), "overshoot floors at zero")
	assert.InDelta(t, 0.5, boundedSimilarity(3, 0), 1e-9, "degenerate window is neutral")
	assert.InDelta(t, 0.5, boundedSimilarity(3, -1), 1e-9)
}

func TestScore_ClampsFinal(t *testing.T) {
	// Weights normalise to sum one, so the blend cannot exceed [0,1]; this
	// guards the clamp anyway against float drift.
	engine := NewEngine(EngineConfig{})
	target := scoredVehicle("veh-a")
	candidate := scoredVehicle("veh-b")

	score, _ := engine.Score(target, candidate, DefaultTolerances())
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.False(t, math.IsNaN(score))
}
