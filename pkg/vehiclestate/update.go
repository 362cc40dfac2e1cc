package vehiclestate

import (
	"errors"
	"math"

	"github.com/travigo/livebus/pkg/ctdf"
)

// Source says where an update came from. Channel and external updates are
// authoritative over the local simulation.
type Source int

const (
	SourceSimulation Source = iota
	SourceChannel
	SourceExternal
)

func (s Source) String() string {
	switch s {
	case SourceSimulation:
		return "simulation"
	case SourceChannel:
		return "channel"
	case SourceExternal:
		return "external"
	}
	return "unknown"
}

func (s Source) Authoritative() bool {
	return s != SourceSimulation
}

// LocationUpdate holds the movement fields of a partial update. Nil fields
// are left unchanged.
type LocationUpdate struct {
	Location  *ctdf.Location
	Bearing   *float64
	StopIndex *int
	Progress  *float64

	NextStop      *ctdf.NextStopProjection
	ClearNextStop bool
}

func (u LocationUpdate) empty() bool {
	return u.Location == nil && u.Bearing == nil && u.StopIndex == nil && u.Progress == nil &&
		u.NextStop == nil && !u.ClearNextStop
}

// Update is a combined location and status change applied as one
type Update struct {
	LocationUpdate

	Source Source

	// Empty leaves the status unchanged
	Status ctdf.VehicleStatus

	// Nil leaves the route unchanged, an empty string unassigns it
	RouteRef *string
}

func Ptr[T any](v T) *T {
	return &v
}

func validBearing(bearing float64) bool {
	return !math.IsNaN(bearing) && bearing >= 0 && bearing < 360
}

func validProgress(progress float64) bool {
	return !math.IsNaN(progress) && progress >= 0 && progress <= 1
}

var (
	ErrUnknownVehicle   = errors.New("unknown vehicle")
	ErrVehicleNotActive = errors.New("vehicle is not on a route")
	ErrInvalidLocation  = errors.New("invalid location")
)
