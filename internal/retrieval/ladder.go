// Package retrieval finds comparable candidates through progressive
// constraint relaxation: hard locks always hold, soft windows widen step by
// step until enough rows come back.
package retrieval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Step is one rung of the relaxation ladder. Year tolerance applies
// in-process because registration formats vary too much for SQL; the other
// windows are fractions of the target's value.
type Step struct {
	Name          string
	YearTolerance int
	MileageRatio  float64
	PriceLow      float64
	PriceHigh     float64
	PowerRatio    float64
}

// Ladder returns the relaxation steps in widening order.
func Ladder() []Step {
	return []Step{
		{Name: "strict", YearTolerance: 2, MileageRatio: 0.50, PriceLow: 0.60, PriceHigh: 1.40, PowerRatio: 0.15},
		{Name: "relaxed_year", YearTolerance: 3, MileageRatio: 0.50, PriceLow: 0.60, PriceHigh: 1.40, PowerRatio: 0.15},
		{Name: "relaxed_mileage", YearTolerance: 3, MileageRatio: 0.75, PriceLow: 0.60, PriceHigh: 1.40, PowerRatio: 0.15},
		{Name: "relaxed_price", YearTolerance: 3, MileageRatio: 0.75, PriceLow: 0.50, PriceHigh: 1.50, PowerRatio: 0.15},
		{Name: "relaxed_power", YearTolerance: 3, MileageRatio: 0.75, PriceLow: 0.50, PriceHigh: 1.50, PowerRatio: 0.25},
	}
}

// effectiveKey identifies the predicate set a step actually applies to this
// target. Steps that only widen a window the target cannot use collapse to
// the same key as their predecessor and get skipped.
func (s Step) effectiveKey(t Target) string {
	year, mileage, price, power := "-", "-", "-", "-"
	if t.Year != 0 {
		year = strconv.Itoa(s.YearTolerance)
	}
	if t.Mileage > 0 {
		mileage = strconv.FormatFloat(s.MileageRatio, 'f', 2, 64)
	}
	if t.Price > 0 {
		price = fmt.Sprintf("%.2f-%.2f", s.PriceLow, s.PriceHigh)
	}
	if t.Power > 0 {
		power = strconv.FormatFloat(s.PowerRatio, 'f', 2, 64)
	}
	return strings.Join([]string{year, mileage, price, power}, "|")
}

func (s Step) yearLabel() string {
	return fmt.Sprintf("±%d", s.YearTolerance)
}

func (s Step) mileageLabel() string {
	return fmt.Sprintf("±%d%%", int(math.Round(s.MileageRatio*100)))
}

func (s Step) priceLabel() string {
	return fmt.Sprintf("%d-%d%%", int(math.Round(s.PriceLow*100)), int(math.Round(s.PriceHigh*100)))
}

func (s Step) powerLabel() string {
	return fmt.Sprintf("±%d%%", int(math.Round(s.PowerRatio*100)))
}
