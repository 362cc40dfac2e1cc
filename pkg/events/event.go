package events

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeRouteStarted           EventType = "RouteStarted"
	EventTypeRouteStopped           EventType = "RouteStopped"
	EventTypeRouteCompleted         EventType = "RouteCompleted"
	EventTypeConnectionStateChanged EventType = "ConnectionStateChanged"
)

type Event struct {
	Type      EventType
	Timestamp time.Time

	Body interface{}
}

type RouteEvent struct {
	VehicleID string
	RouteID   string
	DriverID  string `json:",omitempty"`
	Reason    string `json:",omitempty"`
}

type ConnectionEvent struct {
	State    string
	ClientID string
}

func (e Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher accepts tracking events. Implementations must not block.
type Publisher interface {
	Publish(event Event)
}

// Discard drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
