// Package storage provides the Postgres-backed listings store for the
// comparables engine.
package storage

import "time"

// Listing mirrors one row of vehicle_marketplace.vehicle_data plus the
// coerced numeric aliases (price_num, mileage_num, power_num) selected
// alongside the raw columns. Raw price and mileage stay strings because the
// scrapers feed the store free-form text like "€ 18.500,-".
type Listing struct {
	VehicleID            string     `json:"vehicle_id" db:"vehicle_id"`
	ListingURL           *string    `json:"listing_url,omitempty" db:"listing_url"`
	Price                *string    `json:"price,omitempty" db:"price"`
	MileageKM            *string    `json:"mileage_km,omitempty" db:"mileage_km"`
	FirstRegistrationRaw *string    `json:"first_registration_raw,omitempty" db:"first_registration_raw"`
	Make                 *string    `json:"make,omitempty" db:"make"`
	Model                *string    `json:"model,omitempty" db:"model"`
	FuelType             *string    `json:"fuel_type,omitempty" db:"fuel_type"`
	Transmission         *string    `json:"transmission,omitempty" db:"transmission"`
	BodyType             *string    `json:"body_type,omitempty" db:"body_type"`
	Color                *string    `json:"color,omitempty" db:"color"`
	InteriorColor        *string    `json:"interior_color,omitempty" db:"interior_color"`
	UpholsteryColor      *string    `json:"upholstery_color,omitempty" db:"upholstery_color"`
	Description          *string    `json:"description,omitempty" db:"description"`
	DataSource           *string    `json:"data_source,omitempty" db:"data_source"`
	PowerKW              *string    `json:"power_kw,omitempty" db:"power_kw"`
	Images               *string    `json:"images,omitempty" db:"images"`
	IsAvailable          bool       `json:"is_vehicle_available" db:"is_vehicle_available"`
	CreatedAt            *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty" db:"updated_at"`

	PriceNum   *float64 `json:"price_num,omitempty" db:"price_num"`
	MileageNum *float64 `json:"mileage_num,omitempty" db:"mileage_num"`
	PowerNum   *float64 `json:"power_num,omitempty" db:"power_num"`
}

// MarketStats summarises the whole store for the stats endpoint.
type MarketStats struct {
	TotalVehicles int64 `json:"total_vehicles"`
	UniqueMakes   int64 `json:"unique_makes"`
	DataSources   int64 `json:"data_sources"`
}

// TopVehicle is one row of the most-listed ranking.
type TopVehicle struct {
	Rank      int    `json:"rank"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	Count     int    `json:"count"`
	SampleURL string `json:"sample_url"`
}
