// Package main provides the comparables API server entrypoint.
package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/carmarket/comparables-engine/cmd/comparables-api/handlers"
	"github.com/carmarket/comparables-engine/cmd/comparables-api/middleware"
	"github.com/carmarket/comparables-engine/internal/api/rpc"
	"github.com/carmarket/comparables-engine/internal/config"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/pkg/engine"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, eng *engine.Engine, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	listings := handlers.NewListingsHandler(logger, eng, cfg.Retrieval.CandidateLimit)
	market := handlers.NewMarketHandler(logger, eng)

	r.Get("/health", market.Health)
	r.Get("/stats", market.Stats)
	r.Get("/top-vehicles", market.TopVehicles)
	r.Get("/listings/{vehicleID}", listings.GetVehicle)
	r.Get("/listings/{vehicleID}/comparables", listings.FindComparables)

	// Connect procedures share the engine with the REST routes.
	rpcPath, rpcHandler := rpc.NewComparablesHandler(rpc.NewComparablesService(logger, eng))
	r.Mount(strings.TrimSuffix(rpcPath, "/"), rpcHandler)

	return r
}
