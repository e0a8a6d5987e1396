package rpc

import (
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// ServiceName is the fully qualified Connect service name.
	ServiceName = "comparables.v1.ComparablesService"

	// GetVehicleProcedure is the path of the GetVehicle procedure.
	GetVehicleProcedure = "/comparables.v1.ComparablesService/GetVehicle"

	// FindComparablesProcedure is the path of the FindComparables procedure.
	FindComparablesProcedure = "/comparables.v1.ComparablesService/FindComparables"
)

// NewComparablesHandler builds HTTP handlers for the Connect procedures and
// returns the path prefix to mount them under. The service speaks plain JSON
// rather than protobuf, so the handlers are wired with a codec that defers to
// encoding/json.
func NewComparablesHandler(svc *ComparablesService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(GetVehicleProcedure, connect.NewUnaryHandler(GetVehicleProcedure, svc.GetVehicle, opts...))
	mux.Handle(FindComparablesProcedure, connect.NewUnaryHandler(FindComparablesProcedure, svc.FindComparables, opts...))
	return "/" + ServiceName + "/", mux
}

// jsonCodec satisfies connect.Codec for plain JSON-tagged message structs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}
