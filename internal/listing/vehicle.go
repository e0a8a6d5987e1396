// Package listing shapes raw store rows into the normalised vehicle payload
// the engine scores and serves. Every derived field degrades to null instead
// of failing, so one malformed listing never breaks a response.
package listing

import (
	"time"

	"github.com/carmarket/comparables-engine/internal/normalize"
	"github.com/carmarket/comparables-engine/internal/storage"
)

// Vehicle is the serving shape of one listing. Raw columns ride along next
// to their derived forms so clients can always see what the engine saw.
type Vehicle struct {
	ID                     string     `json:"id"`
	URL                    *string    `json:"url"`
	PriceEUR               *float64   `json:"price_eur"`
	PriceRaw               *string    `json:"price_raw"`
	MileageKM              *float64   `json:"mileage_km"`
	MileageRaw             *string    `json:"mileage_raw"`
	Year                   *int       `json:"year"`
	AgeMonths              *int       `json:"age_months"`
	Make                   *string    `json:"make"`
	Model                  *string    `json:"model"`
	FuelGroup              *string    `json:"fuel_group"`
	TransmissionGroup      *string    `json:"transmission_group"`
	BodyGroup              *string    `json:"body_group"`
	Color                  *string    `json:"color"`
	ColorCanonical         *string    `json:"color_canonical"`
	InteriorColor          *string    `json:"interior_color"`
	InteriorColorEffective *string    `json:"interior_color_effective"`
	UpholsteryColor        *string    `json:"upholstery_color"`
	Description            string     `json:"description"`
	DataSource             *string    `json:"data_source"`
	PowerKW                *float64   `json:"power_kw"`
	Images                 []string   `json:"images"`
	FirstRegistrationRaw   *string    `json:"first_registration_raw"`
	CreatedAt              *time.Time `json:"created_at"`
	FreshnessDays          *float64   `json:"freshness_days"`

	profile *normalize.TextProfile
}

// FromRow derives the serving shape from a store row. The clock parameter
// pins age and freshness so batches convert against one instant.
func FromRow(row *storage.Listing, now time.Time) *Vehicle {
	v := &Vehicle{
		ID:                   row.VehicleID,
		URL:                  row.ListingURL,
		PriceRaw:             row.Price,
		MileageRaw:           row.MileageKM,
		Make:                 cleanPtr(row.Make),
		Model:                cleanPtr(row.Model),
		FuelGroup:            groupPtr(row.FuelType, normalize.Fuel),
		TransmissionGroup:    groupPtr(row.Transmission, normalize.Transmission),
		BodyGroup:            groupPtr(row.BodyType, normalize.Body),
		Color:                cleanPtr(row.Color),
		ColorCanonical:       groupPtr(row.Color, normalize.Color),
		UpholsteryColor:      row.UpholsteryColor,
		DataSource:           row.DataSource,
		Images:               normalize.Images(deref(row.Images)),
		FirstRegistrationRaw: row.FirstRegistrationRaw,
		CreatedAt:            row.CreatedAt,
		Description:          deref(row.Description),
	}

	v.PriceEUR = numeric(row.PriceNum, row.Price, normalize.Price)
	v.MileageKM = numeric(row.MileageNum, row.MileageKM, normalize.Mileage)
	// Power has no raw fallback: the store cast already rejects anything
	// that is not a plain number.
	v.PowerKW = row.PowerNum

	if row.FirstRegistrationRaw != nil {
		if year, ok := normalize.ExtractYear(*row.FirstRegistrationRaw); ok {
			v.Year = &year
		}
		if reg, ok := normalize.ParseTimestamp(*row.FirstRegistrationRaw); ok {
			months := normalize.AgeMonths(reg, now)
			v.AgeMonths = &months
		}
	}

	// Interior falls back to upholstery when the dedicated column is blank;
	// the raw pick is served as-is next to its cleaned form.
	interior := row.InteriorColor
	if interior == nil || *interior == "" {
		interior = row.UpholsteryColor
	}
	if interior != nil && *interior != "" {
		v.InteriorColor = interior
		v.InteriorColorEffective = cleanPtr(interior)
	}

	if basis := pickTime(row.UpdatedAt, row.CreatedAt); basis != nil {
		days := normalize.FreshnessDays(*basis, now)
		v.FreshnessDays = &days
	}
	return v
}

// TextProfile returns the tokenised description, building it on first use.
func (v *Vehicle) TextProfile() *normalize.TextProfile {
	if v.profile == nil {
		v.profile = normalize.BuildTextProfile(v.Description)
	}
	return v.profile
}

func cleanPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	cleaned := normalize.Clean(*raw)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

func groupPtr(raw *string, derive func(string) string) *string {
	if raw == nil {
		return nil
	}
	group := derive(*raw)
	if group == "" {
		return nil
	}
	return &group
}

// numeric prefers the store-coerced value and re-parses the raw text when
// the coercion came back NULL.
func numeric(coerced *float64, raw *string, parse func(string) (float64, bool)) *float64 {
	if coerced != nil {
		return coerced
	}
	if raw == nil {
		return nil
	}
	if value, ok := parse(*raw); ok {
		return &value
	}
	return nil
}

func pickTime(first, second *time.Time) *time.Time {
	if first != nil {
		return first
	}
	return second
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
