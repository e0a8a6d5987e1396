package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Table is the fully qualified listings relation.
const Table = "vehicle_marketplace.vehicle_data"

const (
	// PriceNumSQL coerces the free-form price column to a float by keeping
	// its digits only, so "€ 18.500,-" reads as 18500.
	PriceNumSQL = `CAST(NULLIF(REGEXP_REPLACE(price, '[^0-9]', '', 'g'), '') AS DOUBLE PRECISION)`

	// MileageNumSQL coerces mileage_km, which arrives as text or numeric
	// depending on the scraper.
	MileageNumSQL = `CAST(NULLIF(REGEXP_REPLACE(COALESCE(CAST(mileage_km AS TEXT), ''), '[^0-9]', '', 'g'), '') AS DOUBLE PRECISION)`

	// PowerNumSQL validates power_kw before casting so junk text turns into
	// NULL instead of failing the whole statement.
	PowerNumSQL = `CASE WHEN TRIM(COALESCE(CAST(power_kw AS TEXT), '')) ~ '^[0-9]+(\.[0-9]+)?$' THEN CAST(TRIM(CAST(power_kw AS TEXT)) AS DOUBLE PRECISION) ELSE NULL END`
)

// selectBase lists every column a Listing scan expects, in scan order.
const selectBase = `vehicle_id, listing_url, price, CAST(mileage_km AS TEXT) AS mileage_km,
	first_registration_raw, make, model, fuel_type, transmission, body_type,
	color, interior_color, upholstery_color, description, data_source,
	CAST(power_kw AS TEXT) AS power_kw, images, is_vehicle_available,
	created_at, updated_at,
	` + PriceNumSQL + ` AS price_num,
	` + MileageNumSQL + ` AS mileage_num,
	` + PowerNumSQL + ` AS power_num`

// retryBackoff is the pause before the single retry of a read that failed
// with a transient error.
const retryBackoff = 150 * time.Millisecond

// DB abstracts database operations for testing.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ListingRepository reads and writes vehicle listings.
type ListingRepository struct {
	db DB
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db DB) *ListingRepository {
	return &ListingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(rs rowScanner) (*Listing, error) {
	var l Listing
	err := rs.Scan(
		&l.VehicleID, &l.ListingURL, &l.Price, &l.MileageKM,
		&l.FirstRegistrationRaw, &l.Make, &l.Model, &l.FuelType,
		&l.Transmission, &l.BodyType, &l.Color, &l.InteriorColor,
		&l.UpholsteryColor, &l.Description, &l.DataSource, &l.PowerKW,
		&l.Images, &l.IsAvailable, &l.CreatedAt, &l.UpdatedAt,
		&l.PriceNum, &l.MileageNum, &l.PowerNum,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// queryListings runs a listing SELECT and scans every row, retrying once
// when the first attempt fails with a transient error.
func (r *ListingRepository) queryListings(ctx context.Context, query string, args ...interface{}) ([]*Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, err
		}
		rows, err = r.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []*Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// FetchVehicle returns the available listing with the given vehicle ID.
func (r *ListingRepository) FetchVehicle(ctx context.Context, vehicleID string) (*Listing, error) {
	query := `SELECT ` + selectBase + `
		FROM ` + Table + `
		WHERE vehicle_id = $1 AND is_vehicle_available = true
		LIMIT 1`

	l, err := scanListing(r.db.QueryRowContext(ctx, query, vehicleID))
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		time.Sleep(retryBackoff)
		l, err = scanListing(r.db.QueryRowContext(ctx, query, vehicleID))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch vehicle: %w", err)
	}
	return l, nil
}

// FetchCandidates runs one retrieval step. The where clause must reference
// its arguments as $1..$n; the row limit is appended as the next placeholder.
// Rows come back newest first.
func (r *ListingRepository) FetchCandidates(ctx context.Context, where string, args []interface{}, limit int) ([]*Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		selectBase, Table, where, len(args)+1)

	queryArgs := make([]interface{}, 0, len(args)+1)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, limit)
	return r.queryListings(ctx, query, queryArgs...)
}

// FetchCohort returns the newest available listings sharing the target's make
// and model, excluding the target itself. The exact match runs first; when it
// finds nothing a case-insensitive trimmed match runs instead, and the second
// return reports that the fallback was used.
func (r *ListingRepository) FetchCohort(ctx context.Context, vehicleID, make, model string, limit int) ([]*Listing, bool, error) {
	query := `SELECT ` + selectBase + `
		FROM ` + Table + `
		WHERE is_vehicle_available = true AND vehicle_id != $1 AND make = $2 AND model = $3
		ORDER BY created_at DESC LIMIT $4`

	listings, err := r.queryListings(ctx, query, vehicleID, make, model, limit)
	if err != nil {
		return nil, false, err
	}
	if len(listings) > 0 {
		return listings, false, nil
	}

	fallback := `SELECT ` + selectBase + `
		FROM ` + Table + `
		WHERE is_vehicle_available = true AND vehicle_id != $1
			AND LOWER(TRIM(make)) = $2 AND LOWER(TRIM(model)) = $3
		ORDER BY created_at DESC LIMIT $4`

	listings, err = r.queryListings(ctx, fallback, vehicleID, strings.ToLower(make), strings.ToLower(model), limit)
	if err != nil {
		return nil, false, err
	}
	return listings, true, nil
}

// CountAvailable counts the listings currently marked available.
func (r *ListingRepository) CountAvailable(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM ` + Table + ` WHERE is_vehicle_available = true`

	var count int64
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		time.Sleep(retryBackoff)
		err = r.db.QueryRowContext(ctx, query).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// MarketStats aggregates store-wide counts in a single statement.
func (r *ListingRepository) MarketStats(ctx context.Context) (*MarketStats, error) {
	query := `SELECT
		COUNT(*) FILTER (WHERE is_vehicle_available = true) AS total_vehicles,
		COUNT(DISTINCT make) AS unique_makes,
		COUNT(DISTINCT data_source) AS data_sources
		FROM ` + Table

	var stats MarketStats
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalVehicles, &stats.UniqueMakes, &stats.DataSources)
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		time.Sleep(retryBackoff)
		err = r.db.QueryRowContext(ctx, query).Scan(&stats.TotalVehicles, &stats.UniqueMakes, &stats.DataSources)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate market stats: %w", err)
	}
	return &stats, nil
}

// TopVehicles ranks make/model pairs by listing count, most listed first.
// Each row carries one sample URL so callers can link somewhere real.
func (r *ListingRepository) TopVehicles(ctx context.Context, limit int) ([]*TopVehicle, error) {
	query := `SELECT make, model, COUNT(*) AS listing_count, MIN(listing_url) AS sample_url
		FROM ` + Table + `
		WHERE make IS NOT NULL AND model IS NOT NULL AND listing_url IS NOT NULL
			AND is_vehicle_available = true
		GROUP BY make, model
		ORDER BY COUNT(*) DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top vehicles: %w", err)
	}
	defer rows.Close()

	var top []*TopVehicle
	for rows.Next() {
		tv := &TopVehicle{Rank: len(top) + 1}
		if err := rows.Scan(&tv.Make, &tv.Model, &tv.Count, &tv.SampleURL); err != nil {
			return nil, fmt.Errorf("failed to scan top vehicle: %w", err)
		}
		top = append(top, tv)
	}
	return top, rows.Err()
}

// Insert upserts a listing keyed by vehicle ID. The seeder and the
// integration tests use it; the serving path never writes.
func (r *ListingRepository) Insert(ctx context.Context, l *Listing) error {
	now := time.Now()
	if l.CreatedAt == nil {
		l.CreatedAt = &now
	}
	if l.UpdatedAt == nil {
		l.UpdatedAt = &now
	}

	query := `INSERT INTO ` + Table + ` (
			vehicle_id, listing_url, price, mileage_km, first_registration_raw,
			make, model, fuel_type, transmission, body_type,
			color, interior_color, upholstery_color, description, data_source,
			power_kw, images, is_vehicle_available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (vehicle_id) DO UPDATE SET
			listing_url = EXCLUDED.listing_url,
			price = EXCLUDED.price,
			mileage_km = EXCLUDED.mileage_km,
			is_vehicle_available = EXCLUDED.is_vehicle_available,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		l.VehicleID, l.ListingURL, l.Price, l.MileageKM, l.FirstRegistrationRaw,
		l.Make, l.Model, l.FuelType, l.Transmission, l.BodyType,
		l.Color, l.InteriorColor, l.UpholsteryColor, l.Description, l.DataSource,
		l.PowerKW, l.Images, l.IsAvailable, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// Repositories bundles every repository the engine needs.
type Repositories struct {
	Listings *ListingRepository
}

// NewRepositories creates all repositories sharing one connection pool.
func NewRepositories(db DB) *Repositories {
	return &Repositories{Listings: NewListingRepository(db)}
}
