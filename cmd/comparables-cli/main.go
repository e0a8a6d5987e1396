// Package main provides the comparables CLI entrypoint.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/carmarket/comparables-engine/internal/cache"
	"github.com/carmarket/comparables-engine/internal/config"
	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/ranking"
	"github.com/carmarket/comparables-engine/internal/retrieval"
	"github.com/carmarket/comparables-engine/internal/scoring"
	"github.com/carmarket/comparables-engine/internal/storage"
	"github.com/carmarket/comparables-engine/pkg/engine"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "comparables-cli",
	Short: "Comparables engine CLI for lookups, seeding, and administration",
	Long: `Comparables CLI provides operator commands for the vehicle comparables
engine.

Use this tool to:
- Look up normalised vehicle payloads
- Rank comparable listings for a target vehicle
- Inspect market stats and the most-listed models
- Seed a development database from JSON fixtures
- Benchmark end-to-end ranking latency
- Apply the schema migration

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}
		logLevel := cfg.Observability.LogLevel
		if verbose {
			logLevel = "debug"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       logLevel,
			Format:      logFormat,
			ServiceName: "comparables-cli",
		})

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(newVehicleCmd())
	rootCmd.AddCommand(newComparablesCmd())
	rootCmd.AddCommand(newTopCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newVehicleCmd creates the vehicle lookup subcommand.
func newVehicleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vehicle <vehicle-id>",
		Short: "Look up one listing as its normalised payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			v, err := buildEngine(db).Vehicle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch vehicle: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			ui.Section("Vehicle")
			ui.KeyValue("ID", v.ID)
			ui.KeyValue("Make", orDash(v.Make))
			ui.KeyValue("Model", orDash(v.Model))
			ui.KeyValue("Year", formatYear(v.Year))
			ui.KeyValue("Price", formatEUR(v.PriceEUR))
			ui.KeyValue("Mileage", formatKM(v.MileageKM))
			ui.KeyValue("Power", formatPower(v.PowerKW))
			ui.KeyValue("Fuel", orDash(v.FuelGroup))
			ui.KeyValue("Transmission", orDash(v.TransmissionGroup))
			ui.KeyValue("Body", orDash(v.BodyGroup))
			ui.KeyValue("Colour", orDash(v.ColorCanonical))
			ui.KeyValue("Source", orDash(v.DataSource))
			ui.KeyValue("Images", len(v.Images))
			if v.FreshnessDays != nil {
				ui.KeyValue("Freshness", fmt.Sprintf("%.1f days", *v.FreshnessDays))
			}
			if v.Description != "" {
				ui.KeyValue("Description", truncate(v.Description, 120))
			}
			if v.URL != nil {
				ui.KeyValue("URL", *v.URL)
			}
			return nil
		},
	}
}

// newComparablesCmd creates the comparables ranking subcommand.
func newComparablesCmd() *cobra.Command {
	var (
		top           int
		yearVariance  int
		maxCandidates int
		balance       float64
	)

	cmd := &cobra.Command{
		Use:   "comparables <vehicle-id>",
		Short: "Rank comparable listings for a target vehicle",
		Long: `Comparables fetches the target listing, recalls candidates through the
relaxation ladder, and prints the ranked results with their score
breakdown. Balance shifts the blend between match quality (-1) and deal
quality (+1).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			eng := buildEngine(db)

			opts := engine.DefaultComparablesOptions()
			opts.Top = top
			opts.YearVariance = yearVariance
			opts.Balance = balance
			opts.MaxCandidates = cfg.Retrieval.CandidateLimit
			if maxCandidates > 0 {
				opts.MaxCandidates = maxCandidates
			}

			logger.Debug().
				Str("vehicle_id", args[0]).
				Int("top", opts.Top).
				Float64("balance", opts.Balance).
				Msg("Fetching comparables")

			spin := NewSpinner("Scoring candidates...")
			if !outputJSON {
				spin.Start()
			}
			result, err := eng.Comparables(ctx, args[0], opts)
			if !outputJSON {
				spin.Stop()
			}
			if err != nil {
				return fmt.Errorf("fetch comparables: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			m := result.Metadata
			ui.Section("Comparables")
			ui.KeyValue("Target", vehicleLabel(result.Vehicle))
			ui.KeyValue("Strategy", m.FilterStrategy)
			ui.KeyValue("Candidates", fmt.Sprintf("%d scored / %d raw", m.TotalCandidates, m.RawCandidates))
			if m.CohortMedianPrice != nil {
				ui.KeyValue("Cohort median", formatEUR(m.CohortMedianPrice))
			}
			ui.KeyValue("Processing", fmt.Sprintf("%.3fs", m.ProcessingTimeS))
			ui.Newline()

			rows := make([][]string, 0, len(result.Comparables))
			for i, rv := range result.Comparables {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					vehicleLabel(rv.Vehicle),
					formatYear(rv.Year),
					formatKM(rv.MileageKM),
					formatEUR(rv.PriceEUR),
					formatPct(rv.SavingsPercent),
					fmt.Sprintf("%.3f", rv.SimilarityScore),
					fmt.Sprintf("%.3f", rv.DealScore),
					fmt.Sprintf("%.3f", rv.FinalScore),
				})
			}
			ui.Table([]string{"#", "VEHICLE", "YEAR", "MILEAGE", "PRICE", "SAVINGS", "MATCH", "DEAL", "SCORE"}, rows)

			if m.Warning != "" {
				ui.Newline()
				ui.Warning("%s", m.Warning)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "results to return (1-50)")
	cmd.Flags().IntVar(&yearVariance, "year-variance", 2, "strict-step year window")
	cmd.Flags().IntVar(&maxCandidates, "max-candidates", 0, "candidate recall budget (default: configured limit)")
	cmd.Flags().Float64Var(&balance, "balance", 0, "blend between match (-1) and deal (+1)")

	return cmd
}

// newTopCmd creates the most-listed ranking subcommand.
func newTopCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the most-listed make/model pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			result, err := buildEngine(db).TopVehicles(ctx, limit)
			if err != nil {
				return fmt.Errorf("fetch top vehicles: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			ui.Section("Top Vehicles")
			rows := make([][]string, 0, len(result.Vehicles))
			for _, tv := range result.Vehicles {
				rows = append(rows, []string{
					strconv.Itoa(tv.Rank),
					tv.Make,
					tv.Model,
					strconv.Itoa(tv.Count),
				})
			}
			ui.Table([]string{"RANK", "MAKE", "MODEL", "LISTINGS"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "rows to return (1-50)")
	return cmd
}

// newStatsCmd creates the market stats subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store-wide market aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			stats, err := buildEngine(db).Stats(ctx)
			if err != nil {
				return fmt.Errorf("fetch stats: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			ui.Section("Market")
			ui.KeyValue("Total vehicles", stats.TotalVehicles)
			ui.KeyValue("Unique makes", stats.UniqueMakes)
			ui.KeyValue("Data sources", stats.DataSources)
			ui.KeyValue("As of", stats.Timestamp)
			return nil
		},
	}
}

// seedRow is one fixture entry. Availability defaults to true when the
// fixture omits it, which the plain row struct cannot express.
type seedRow struct {
	storage.Listing
	Available *bool `json:"is_vehicle_available"`
}

// newSeedCmd creates the fixture loader subcommand.
func newSeedCmd() *cobra.Command {
	var (
		file       string
		clearFirst bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-load listings from a JSON fixture file",
		Long: `Seed reads an array of listing rows from a JSON file and upserts them
into the configured database. Rows without a vehicle_id get a generated
one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read fixture file: %w", err)
			}

			var rows []seedRow
			if err := json.Unmarshal(raw, &rows); err != nil {
				return fmt.Errorf("parse fixture file: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("fixture file %s holds no rows", file)
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			repo := storage.NewListingRepository(db)

			if clearFirst {
				if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+storage.Table); err != nil {
					return fmt.Errorf("truncate table: %w", err)
				}
				logger.Info().Msg("Truncated listings table")
			}

			logger.Info().Str("file", file).Int("rows", len(rows)).Msg("Seeding listings")

			var bar *SeedBar
			if !outputJSON {
				bar = NewSeedBar(int64(len(rows)), "seeding")
			}

			start := time.Now()
			seeded := 0
			for _, row := range rows {
				l := row.Listing
				if l.VehicleID == "" {
					l.VehicleID = uuid.NewString()
				}
				l.IsAvailable = row.Available == nil || *row.Available

				if err := repo.Insert(ctx, &l); err != nil {
					if bar != nil {
						bar.Finish()
					}
					return fmt.Errorf("insert %s: %w", l.VehicleID, err)
				}
				seeded++
				if bar != nil {
					bar.Add(1)
				}
			}
			if bar != nil {
				bar.Finish()
			}
			elapsed := time.Since(start)

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"seeded":     seeded,
					"elapsed_ms": elapsed.Milliseconds(),
				})
			}

			fmt.Printf("✓ Seeded %d listings in %s\n", seeded, FormatDuration(elapsed))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON fixture file (required)")
	cmd.Flags().BoolVar(&clearFirst, "truncate", false, "clear the table before seeding")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// newBenchCmd creates the latency benchmark subcommand.
func newBenchCmd() *cobra.Command {
	var (
		requests    int
		concurrency int
		top         int
	)

	cmd := &cobra.Command{
		Use:   "bench <vehicle-id>",
		Short: "Benchmark comparables latency against the live store",
		Long: `Bench runs repeated comparables requests through the engine and reports
the latency distribution. Each worker renders its own progress bar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			if requests < 1 {
				return fmt.Errorf("--requests must be at least 1")
			}
			if concurrency < 1 {
				concurrency = 1
			}
			if concurrency > requests {
				concurrency = requests
			}

			vehicleID := args[0]

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			eng := buildEngine(db)

			opts := engine.DefaultComparablesOptions()
			opts.Top = top
			opts.MaxCandidates = cfg.Retrieval.CandidateLimit

			// One warm-up request validates the target and fills the cohort
			// cache so the measured run reflects steady-state latency.
			spin := NewSpinner("Warming up...")
			if !outputJSON {
				spin.Start()
			}
			_, err = eng.Comparables(ctx, vehicleID, opts)
			if !outputJSON {
				spin.Stop()
			}
			if err != nil {
				return fmt.Errorf("warm-up request: %w", err)
			}

			logger.Info().
				Str("vehicle_id", vehicleID).
				Int("requests", requests).
				Int("concurrency", concurrency).
				Msg("Starting benchmark")

			ui := NewUI(outputJSON, noColor)

			latencies := make([]time.Duration, 0, requests)
			failures := 0
			var mu sync.Mutex
			var wg sync.WaitGroup

			start := time.Now()
			for w, share := range workerShares(requests, concurrency) {
				if share == 0 {
					continue
				}
				bar := ui.WorkerBar(fmt.Sprintf("worker-%d", w+1), int64(share))

				wg.Add(1)
				go func(share int, bar *mpb.Bar) {
					defer wg.Done()
					for i := 0; i < share; i++ {
						began := time.Now()
						_, err := eng.Comparables(ctx, vehicleID, opts)
						took := time.Since(began)

						mu.Lock()
						if err != nil {
							failures++
						} else {
							latencies = append(latencies, took)
						}
						mu.Unlock()

						if bar != nil {
							bar.Increment()
						}
					}
				}(share, bar)
			}
			wg.Wait()
			ui.Close()
			elapsed := time.Since(start)

			if len(latencies) == 0 {
				return fmt.Errorf("all %d requests failed", requests)
			}

			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

			var total time.Duration
			for _, l := range latencies {
				total += l
			}
			mean := total / time.Duration(len(latencies))
			throughput := float64(len(latencies)) / elapsed.Seconds()

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"requests":       requests,
					"concurrency":    concurrency,
					"failures":       failures,
					"elapsed_ms":     elapsed.Milliseconds(),
					"throughput_rps": math.Round(throughput*10) / 10,
					"latency_ms": map[string]float64{
						"min":  latencyMS(latencies[0]),
						"mean": latencyMS(mean),
						"p50":  latencyMS(percentile(latencies, 0.50)),
						"p95":  latencyMS(percentile(latencies, 0.95)),
						"p99":  latencyMS(percentile(latencies, 0.99)),
						"max":  latencyMS(latencies[len(latencies)-1]),
					},
				})
			}

			ui.Section("Latency")
			ui.KeyValue("Requests", fmt.Sprintf("%d (%d failed)", requests, failures))
			ui.KeyValue("Concurrency", concurrency)
			ui.KeyValue("Elapsed", FormatDuration(elapsed))
			ui.KeyValue("Throughput", fmt.Sprintf("%.1f req/s", throughput))
			ui.KeyValue("Min", FormatDuration(latencies[0]))
			ui.KeyValue("Mean", FormatDuration(mean))
			ui.KeyValue("p50", FormatDuration(percentile(latencies, 0.50)))
			ui.KeyValue("p95", FormatDuration(percentile(latencies, 0.95)))
			ui.KeyValue("p99", FormatDuration(percentile(latencies, 0.99)))
			ui.KeyValue("Max", FormatDuration(latencies[len(latencies)-1]))
			ui.Newline()
			ui.Success("Benchmark complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&requests, "requests", 50, "total requests to issue")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().IntVar(&top, "top", 10, "comparables per request")

	return cmd
}

// newMigrateCmd creates the migration subcommand.
func newMigrateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema migration to the configured database",
		Long: `Migrate executes the listings schema file against the configured Postgres
database. The statements are idempotent, so re-running is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			logger.Info().Str("file", file).Msg("Running migration")

			ddl, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read migration file: %w", err)
			}
			if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
				return fmt.Errorf("execute migration: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{"applied": file})
			}

			fmt.Printf("✓ Migration applied from %s\n", file)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "db/migrations/0001_init.sql", "migration file to execute")
	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				_ = enc.Encode(map[string]string{
					"version": "0.1.0",
					"go":      "1.25",
				})
				return
			}
			fmt.Println("comparables-cli v0.1.0")
		},
	}
}

// openDatabase opens the Postgres pool and verifies connectivity.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// buildEngine wires the full scoring pipeline over one connection pool. The
// CLI always backs the cohort cache with the in-process store.
func buildEngine(db *sql.DB) *engine.Engine {
	repos := storage.NewRepositories(db)

	var cohort *retrieval.CohortCache
	if cfg.CohortCacheEnabled() {
		cohort = retrieval.NewCohortCache(cache.NewMemoryClient(cfg.Cache.MaxEntries), logger, cfg.Cache.CohortTTL)
	}

	return engine.New(engine.Config{
		Store:     repos.Listings,
		Retriever: retrieval.NewRetriever(repos.Listings, cohort, logger),
		Ranker:    ranking.NewRanker(scoring.NewEngine(scoring.EngineConfig{}), logger),
		Logger:    logger,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatYear(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func formatEUR(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("€%.0f", *v)
}

func formatKM(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f km", *v)
}

func formatPower(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f kW", *v)
}

func formatPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

// vehicleLabel renders "Make Model", falling back to the listing ID when
// the identity fields are empty.
func vehicleLabel(v *listing.Vehicle) string {
	label := strings.TrimSpace(deref(v.Make) + " " + deref(v.Model))
	if label == "" {
		return v.ID
	}
	return label
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// workerShares splits the request total across workers, front-loading the
// remainder so every request lands on exactly one worker.
func workerShares(requests, workers int) []int {
	shares := make([]int, workers)
	for i := range shares {
		shares[i] = requests / workers
		if i < requests%workers {
			shares[i]++
		}
	}
	return shares
}

// percentile picks the nearest-rank value from a sorted latency slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Round(p * float64(len(sorted)-1)))
	return sorted[idx]
}

func latencyMS(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e4) / 100
}
