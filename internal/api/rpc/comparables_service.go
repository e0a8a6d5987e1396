// Package rpc provides the Connect service surface for the comparables engine.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/carmarket/comparables-engine/internal/listing"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/ranking"
	"github.com/carmarket/comparables-engine/internal/retrieval"
	"github.com/carmarket/comparables-engine/internal/storage"
	"github.com/carmarket/comparables-engine/pkg/engine"
)

// ComparablesService implements the Connect comparables service.
type ComparablesService struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewComparablesService creates a new comparables service.
func NewComparablesService(logger *observability.Logger, eng *engine.Engine) *ComparablesService {
	return &ComparablesService{
		logger: logger,
		engine: eng,
	}
}

// GetVehicleRequest is the request message for the GetVehicle procedure.
type GetVehicleRequest struct {
	VehicleID string `json:"vehicle_id"`
}

// GetVehicleResponse carries a single stored listing.
type GetVehicleResponse struct {
	Vehicle *listing.Vehicle `json:"vehicle"`
}

// FindComparablesRequest is the request message for the FindComparables
// procedure. Knobs are pointers so an absent field keeps the engine default
// while an explicit zero is honoured.
type FindComparablesRequest struct {
	VehicleID                 string   `json:"vehicle_id"`
	Top                       *int     `json:"top,omitempty"`
	YearVariance              *int     `json:"year_variance,omitempty"`
	MileageVarianceMultiplier *float64 `json:"mileage_variance_multiplier,omitempty"`
	MileageMinWindow          *float64 `json:"mileage_min_window,omitempty"`
	PowerVariancePct          *float64 `json:"power_variance_pct,omitempty"`
	PowerMinWindow            *float64 `json:"power_min_window,omitempty"`
	MaxCandidates             *int     `json:"max_candidates,omitempty"`
	Balance                   *float64 `json:"balance,omitempty"`
}

// FindComparablesResponse mirrors the HTTP comparables envelope.
type FindComparablesResponse struct {
	Vehicle     *listing.Vehicle         `json:"vehicle"`
	Comparables []*ranking.RankedVehicle `json:"comparables"`
	Metadata    engine.Metadata          `json:"metadata"`
}

// GetVehicle handles Connect lookups of a single listing.
func (s *ComparablesService) GetVehicle(ctx context.Context, req *connect.Request[GetVehicleRequest]) (*connect.Response[GetVehicleResponse], error) {
	msg := req.Msg

	if msg.VehicleID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("vehicle_id is required"))
	}

	vehicle, err := s.engine.Vehicle(ctx, msg.VehicleID)
	if err != nil {
		return nil, s.wrapError(msg.VehicleID, err)
	}

	return connect.NewResponse(&GetVehicleResponse{Vehicle: vehicle}), nil
}

// FindComparables handles Connect comparables queries.
func (s *ComparablesService) FindComparables(ctx context.Context, req *connect.Request[FindComparablesRequest]) (*connect.Response[FindComparablesResponse], error) {
	msg := req.Msg

	if msg.VehicleID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("vehicle_id is required"))
	}

	result, err := s.engine.Comparables(ctx, msg.VehicleID, msg.options())
	if err != nil {
		return nil, s.wrapError(msg.VehicleID, err)
	}

	return connect.NewResponse(&FindComparablesResponse{
		Vehicle:     result.Vehicle,
		Comparables: result.Comparables,
		Metadata:    result.Metadata,
	}), nil
}

func (m *FindComparablesRequest) options() engine.ComparablesOptions {
	opts := engine.DefaultComparablesOptions()
	if m.Top != nil {
		opts.Top = *m.Top
	}
	if m.YearVariance != nil {
		opts.YearVariance = *m.YearVariance
	}
	if m.MileageVarianceMultiplier != nil {
		opts.MileageMultiplier = *m.MileageVarianceMultiplier
	}
	if m.MileageMinWindow != nil {
		opts.MileageMinWindow = *m.MileageMinWindow
	}
	if m.PowerVariancePct != nil {
		opts.PowerVariancePct = *m.PowerVariancePct
	}
	if m.PowerMinWindow != nil {
		opts.PowerMinWindow = *m.PowerMinWindow
	}
	if m.MaxCandidates != nil {
		opts.MaxCandidates = *m.MaxCandidates
	}
	if m.Balance != nil {
		opts.Balance = *m.Balance
	}
	return opts
}

// wrapError maps engine failures onto Connect status codes. Client mistakes
// keep their messages; unexpected failures are logged and reported as
// internal.
func (s *ComparablesService) wrapError(vehicleID string, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidTop), errors.Is(err, retrieval.ErrMissingIdentity):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("vehicle %s not found", vehicleID))
	case errors.Is(err, retrieval.ErrNoCandidates):
		return connect.NewError(connect.CodeNotFound, errors.New("no comparable vehicles found"))
	case storage.IsTransient(err):
		s.logger.Warn().Err(err).Str("vehicle_id", vehicleID).Msg("Store unavailable during RPC call")
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		s.logger.Error().Err(err).Str("vehicle_id", vehicleID).Msg("RPC call failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
