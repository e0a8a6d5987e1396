package retrieval

import (
	"strconv"
	"strings"

	"github.com/carmarket/comparables-engine/internal/normalize"
	"github.com/carmarket/comparables-engine/internal/storage"
)

// Target carries the normalised attributes of the vehicle being matched.
// Zero values mean the field is unknown and its lock is dropped everywhere.
type Target struct {
	ID           string
	Make         string
	Model        string
	Body         string
	Fuel         string
	Transmission string
	Colour       string
	Year         int
	Mileage      float64
	Price        float64
	Power        float64
}

// NewTarget derives the lock attributes from a store row. Make and model
// keep their case (the store matches them exactly); body, fuel and
// transmission are trimmed and lowered, matching the LOWER(TRIM(col))
// comparison in SQL, which keeps accents; colour goes through the canonical
// table.
func NewTarget(row *storage.Listing) Target {
	t := Target{ID: row.VehicleID}
	if row.Make != nil {
		t.Make = normalize.Clean(*row.Make)
	}
	if row.Model != nil {
		t.Model = normalize.Clean(*row.Model)
	}
	if row.BodyType != nil {
		t.Body = lowerTrim(*row.BodyType)
	}
	if row.FuelType != nil {
		t.Fuel = lowerTrim(*row.FuelType)
	}
	if row.Transmission != nil {
		t.Transmission = lowerTrim(*row.Transmission)
	}
	if row.Color != nil {
		t.Colour = normalize.Color(*row.Color)
	}
	if row.FirstRegistrationRaw != nil {
		if year, ok := normalize.ExtractYear(*row.FirstRegistrationRaw); ok {
			t.Year = year
		}
	}
	t.Price = targetNumber(row.PriceNum, row.Price, normalize.Price)
	t.Mileage = targetNumber(row.MileageNum, row.MileageKM, normalize.Mileage)
	t.Power = targetNumber(row.PowerNum, row.PowerKW, normalize.Mileage)
	return t
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func targetNumber(coerced *float64, raw *string, parse func(string) (float64, bool)) float64 {
	if coerced != nil {
		return *coerced
	}
	if raw != nil {
		if value, ok := parse(*raw); ok {
			return value
		}
	}
	return 0
}

// StepSpec builds the filter for one ladder step against this target.
func (t Target) StepSpec(s Step) FilterSpec {
	spec := FilterSpec{
		ExcludeID:     t.ID,
		Make:          t.Make,
		Model:         t.Model,
		Body:          t.Body,
		Fuel:          t.Fuel,
		Transmission:  t.Transmission,
		RequireColour: t.Colour != "",
	}
	if t.Mileage > 0 {
		spec.Mileage = &Window{Low: t.Mileage * (1 - s.MileageRatio), High: t.Mileage * (1 + s.MileageRatio)}
	}
	if t.Price > 0 {
		spec.Price = &Window{Low: t.Price * s.PriceLow, High: t.Price * s.PriceHigh}
	}
	if t.Power > 0 {
		spec.Power = &Window{Low: t.Power * (1 - s.PowerRatio), High: t.Power * (1 + s.PowerRatio)}
	}
	return spec
}

// Window is an inclusive numeric range.
type Window struct {
	Low  float64
	High float64
}

// FilterSpec is one step's predicate set. It renders to a SQL WHERE clause
// and evaluates rows in-process with the same semantics, so the cached
// universe path and the store path cannot drift apart.
type FilterSpec struct {
	ExcludeID     string
	Make          string
	Model         string
	Body          string
	Fuel          string
	Transmission  string
	RequireColour bool
	Mileage       *Window
	Price         *Window
	Power         *Window
}

// Where renders the filter as a WHERE clause with $1..$n placeholders.
func (f FilterSpec) Where() (string, []interface{}) {
	conds := []string{"is_vehicle_available = true"}
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	conds = append(conds, "vehicle_id != "+arg(f.ExcludeID))
	if f.Make != "" {
		conds = append(conds, "make = "+arg(f.Make))
	}
	if f.Model != "" {
		conds = append(conds, "model = "+arg(f.Model))
	}
	if f.Body != "" {
		conds = append(conds, "LOWER(TRIM(body_type)) = "+arg(f.Body))
	}
	if f.Fuel != "" {
		conds = append(conds, "LOWER(TRIM(fuel_type)) = "+arg(f.Fuel))
	}
	if f.Transmission != "" {
		conds = append(conds, "LOWER(TRIM(transmission)) = "+arg(f.Transmission))
	}
	if f.RequireColour {
		conds = append(conds, "color IS NOT NULL AND color != ''")
	}
	if f.Mileage != nil {
		conds = append(conds, storage.MileageNumSQL+" BETWEEN "+arg(f.Mileage.Low)+" AND "+arg(f.Mileage.High))
	}
	if f.Price != nil {
		conds = append(conds, storage.PriceNumSQL+" BETWEEN "+arg(f.Price.Low)+" AND "+arg(f.Price.High))
	}
	if f.Power != nil {
		conds = append(conds, "power_kw IS NOT NULL AND "+storage.PowerNumSQL+" BETWEEN "+arg(f.Power.Low)+" AND "+arg(f.Power.High))
	}
	return strings.Join(conds, " AND "), args
}

// Matches evaluates the same predicates as Where against one row. The
// numeric checks read the store-coerced aliases, which the universe fetch
// computed with the exact SQL expressions Where embeds.
func (f FilterSpec) Matches(row *storage.Listing) bool {
	if !row.IsAvailable || row.VehicleID == f.ExcludeID {
		return false
	}
	if f.Make != "" && (row.Make == nil || *row.Make != f.Make) {
		return false
	}
	if f.Model != "" && (row.Model == nil || *row.Model != f.Model) {
		return false
	}
	if f.Body != "" && !trimmedLowerEqual(row.BodyType, f.Body) {
		return false
	}
	if f.Fuel != "" && !trimmedLowerEqual(row.FuelType, f.Fuel) {
		return false
	}
	if f.Transmission != "" && !trimmedLowerEqual(row.Transmission, f.Transmission) {
		return false
	}
	if f.RequireColour && (row.Color == nil || *row.Color == "") {
		return false
	}
	if !inWindow(row.MileageNum, f.Mileage) {
		return false
	}
	if !inWindow(row.PriceNum, f.Price) {
		return false
	}
	if !inWindow(row.PowerNum, f.Power) {
		return false
	}
	return true
}

func trimmedLowerEqual(col *string, want string) bool {
	return col != nil && lowerTrim(*col) == want
}

func inWindow(v *float64, w *Window) bool {
	if w == nil {
		return true
	}
	return v != nil && *v >= w.Low && *v <= w.High
}
