// Package message is the wire format spoken over the realtime channel. Every
// frame is a JSON object carrying a type tag and a millisecond timestamp.
package message

import (
	"time"

	"github.com/travigo/livebus/pkg/ctdf"
)

type Type string

const (
	TypeLocationUpdate      Type = "BUS_LOCATION_UPDATE"
	TypeStatusChange        Type = "BUS_STATUS_CHANGE"
	TypeRouteStarted        Type = "ROUTE_STARTED"
	TypeRouteStopped        Type = "ROUTE_STOPPED"
	TypeConnectionAck       Type = "CONNECTION_ACK"
	TypeDriverAuthenticated Type = "DRIVER_AUTHENTICATED"
	TypeError               Type = "ERROR"
)

// Message is implemented by every concrete message struct in this package
type Message interface {
	MessageType() Type
	Time() time.Time
}

// Stamp is the creation time shared by all messages
type Stamp struct {
	Timestamp int64 `json:"timestamp"`
}

func (s Stamp) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

func stampAt(at time.Time) Stamp {
	return Stamp{Timestamp: at.UnixMilli()}
}

type LocationUpdate struct {
	Stamp

	BusID              string                   `json:"busId" validate:"required"`
	Latitude           float64                  `json:"lat"`
	Longitude          float64                  `json:"lng"`
	Heading            float64                  `json:"heading"`
	CurrentStopIndex   int                      `json:"currentStopIndex"`
	ProgressToNextStop float64                  `json:"progressToNextStop"`
	NextStop           *ctdf.NextStopProjection `json:"nextStop,omitempty"`
}

func (LocationUpdate) MessageType() Type { return TypeLocationUpdate }

func (m LocationUpdate) Location() ctdf.Location {
	return ctdf.Location{Latitude: m.Latitude, Longitude: m.Longitude}
}

// NewLocationUpdate builds the update for a vehicle's current state. A
// vehicle without segment progress reports index 0 and progress 0.
func NewLocationUpdate(at time.Time, vehicle *ctdf.Vehicle) LocationUpdate {
	update := LocationUpdate{
		Stamp:     stampAt(at),
		BusID:     vehicle.PrimaryIdentifier,
		Latitude:  vehicle.Location.Latitude,
		Longitude: vehicle.Location.Longitude,
		Heading:   vehicle.Bearing,
	}

	if vehicle.SegmentProgress != nil {
		update.CurrentStopIndex = vehicle.SegmentProgress.StopIndex
		update.ProgressToNextStop = vehicle.SegmentProgress.Progress
	}
	if vehicle.NextStop != nil {
		nextStop := *vehicle.NextStop
		update.NextStop = &nextStop
	}

	return update
}

// StatusCompleted is only seen on the wire. It is applied as idle.
const StatusCompleted = "completed"

type StatusChange struct {
	Stamp

	BusID    string `json:"busId" validate:"required"`
	Status   string `json:"status" validate:"required,oneof=active idle completed maintenance"`
	RouteID  string `json:"routeId,omitempty"`
	DriverID string `json:"driverId,omitempty"`
}

func (StatusChange) MessageType() Type { return TypeStatusChange }

func (m StatusChange) VehicleStatus() ctdf.VehicleStatus {
	if m.Status == StatusCompleted {
		return ctdf.VehicleStatusIdle
	}

	return ctdf.VehicleStatus(m.Status)
}

type RouteStarted struct {
	Stamp

	BusID    string `json:"busId" validate:"required"`
	RouteID  string `json:"routeId" validate:"required"`
	DriverID string `json:"driverId" validate:"required"`
}

func (RouteStarted) MessageType() Type { return TypeRouteStarted }

func NewRouteStarted(at time.Time, busID, routeID, driverID string) RouteStarted {
	return RouteStarted{Stamp: stampAt(at), BusID: busID, RouteID: routeID, DriverID: driverID}
}

type RouteStopped struct {
	Stamp

	BusID   string `json:"busId" validate:"required"`
	RouteID string `json:"routeId" validate:"required"`
	Reason  string `json:"reason,omitempty"`
}

func (RouteStopped) MessageType() Type { return TypeRouteStopped }

func NewRouteStopped(at time.Time, busID, routeID, reason string) RouteStopped {
	return RouteStopped{Stamp: stampAt(at), BusID: busID, RouteID: routeID, Reason: reason}
}

type ConnectionAck struct {
	Stamp

	ClientID string `json:"clientId" validate:"required"`
}

func (ConnectionAck) MessageType() Type { return TypeConnectionAck }

func NewConnectionAck(at time.Time, clientID string) ConnectionAck {
	return ConnectionAck{Stamp: stampAt(at), ClientID: clientID}
}

type DriverAuthenticated struct {
	Stamp

	DriverID string `json:"driverId" validate:"required"`
	BusID    string `json:"busId" validate:"required"`
}

func (DriverAuthenticated) MessageType() Type { return TypeDriverAuthenticated }

func NewDriverAuthenticated(at time.Time, driverID, busID string) DriverAuthenticated {
	return DriverAuthenticated{Stamp: stampAt(at), DriverID: driverID, BusID: busID}
}

type Error struct {
	Stamp

	Code    string `json:"code"`
	Message string `json:"message" validate:"required"`
}

func (Error) MessageType() Type { return TypeError }

func NewError(at time.Time, code, msg string) Error {
	return Error{Stamp: stampAt(at), Code: code, Message: msg}
}
