// Package tracker wires the realtime channel, the route simulation and the
// vehicle state store together and exposes the driver facing operations.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/events"
	"github.com/travigo/livebus/pkg/observer"
	"github.com/travigo/livebus/pkg/realtime/channel"
	"github.com/travigo/livebus/pkg/realtime/message"
	"github.com/travigo/livebus/pkg/realtime/simulation"
	"github.com/travigo/livebus/pkg/routedata"
	"github.com/travigo/livebus/pkg/vehiclestate"
)

const ReasonCompleted = "completed"

// Channel is the part of the connection manager the tracker uses
type Channel interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(msg message.Message) error
	AuthenticateDriver(driverID string, busID string) error
	IsConnected() bool
	ClientID() string
	OnMessage(handler observer.Handler[message.Message]) func()
	OnConnectionChange(handler observer.Handler[channel.ConnectionState]) func()
	OnError(handler observer.Handler[error]) func()
}

type Simulator interface {
	StartSimulation(vehicleID string, routeID string) error
	StopSimulation(vehicleID string) bool
	OnComplete(handler observer.Handler[simulation.Completion]) func()
	OnError(handler observer.Handler[error]) func()
	Close()
}

// Dependencies are the services a tracker is built from. Channel and
// Simulator may be nil when their feature is disabled.
type Dependencies struct {
	Routes    routedata.RouteFinder
	Store     *vehiclestate.Store
	Channel   Channel
	Simulator Simulator
	Events    events.Publisher
	Clock     clockwork.Clock
}

type assignment struct {
	routeID  string
	driverID string
}

type Tracker struct {
	config Config

	routes    routedata.RouteFinder
	store     *vehiclestate.Store
	channel   Channel
	simulator Simulator
	events    events.Publisher
	clock     clockwork.Clock

	mu           sync.Mutex
	assignments  map[string]assignment
	unsubscribes []func()
	connectStop  context.CancelFunc
}

func New(config Config, deps Dependencies) *Tracker {
	t := &Tracker{
		config:      config,
		routes:      deps.Routes,
		store:       deps.Store,
		events:      deps.Events,
		clock:       deps.Clock,
		assignments: map[string]assignment{},
	}

	if config.EnableRealtimeChannel {
		t.channel = deps.Channel
	}
	if config.EnableLocalSimulation {
		t.simulator = deps.Simulator
	}
	if t.events == nil {
		t.events = events.Discard
	}
	if t.clock == nil {
		t.clock = clockwork.NewRealClock()
	}

	return t
}

// Start subscribes to the channel and simulation and begins connecting in
// the background. The tracker keeps working on the simulation while the
// channel is down.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.channel != nil {
		t.unsubscribes = append(t.unsubscribes,
			t.channel.OnMessage(t.handleMessage),
			t.channel.OnConnectionChange(t.handleConnectionChange),
			t.channel.OnError(func(err error) {
				log.Warn().Err(err).Msg("Realtime channel reported error")
			}),
		)

		connectCtx, cancel := context.WithCancel(ctx)
		t.connectStop = cancel

		go func() {
			if err := t.channel.Connect(connectCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Realtime channel unavailable, continuing with local simulation")
			}
		}()
	}

	if t.simulator != nil {
		t.unsubscribes = append(t.unsubscribes,
			t.simulator.OnComplete(t.handleCompletion),
			t.simulator.OnError(func(err error) {
				log.Warn().Err(err).Msg("Simulation reported error")
			}),
		)
	}

	log.Info().
		Bool("realtimeChannel", t.channel != nil).
		Bool("localSimulation", t.simulator != nil).
		Msg("Tracker started")
}

// Stop releases the channel and every running simulation
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsubscribes := t.unsubscribes
	t.unsubscribes = nil
	connectStop := t.connectStop
	t.connectStop = nil
	t.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	if connectStop != nil {
		connectStop()
	}

	if t.channel != nil {
		t.channel.Disconnect()
	}
	if t.simulator != nil {
		t.simulator.Close()
	}

	log.Info().Msg("Tracker stopped")
}

// StartRoute puts the bus on the route for the driver. The route is
// announced on the channel (queued while offline) and simulated locally
// when enabled.
func (t *Tracker) StartRoute(driverID string, busID string, routeID string) error {
	route, exists := t.routes.FindRoute(routeID)
	if !exists {
		return fmt.Errorf("%w: %q", simulation.ErrMissingRoute, routeID)
	}
	if _, exists := t.store.Vehicle(busID); !exists {
		return fmt.Errorf("%w: %q", vehiclestate.ErrUnknownVehicle, busID)
	}

	start := route.Stops[0].Location
	t.store.Apply(busID, vehiclestate.Update{
		Source:   vehiclestate.SourceSimulation,
		Status:   ctdf.VehicleStatusActive,
		RouteRef: &routeID,
		LocationUpdate: vehiclestate.LocationUpdate{
			Location:  &start,
			StopIndex: vehiclestate.Ptr(0),
			Progress:  vehiclestate.Ptr(0.0),
		},
	})

	t.mu.Lock()
	t.assignments[busID] = assignment{routeID: routeID, driverID: driverID}
	t.mu.Unlock()

	if t.channel != nil {
		if t.channel.IsConnected() {
			if err := t.channel.AuthenticateDriver(driverID, busID); err != nil {
				log.Error().Err(err).Str("vehicle", busID).Msg("Failed to send driver authentication")
			}
		}
		t.send(message.NewRouteStarted(t.clock.Now(), busID, routeID, driverID))
	}

	if t.simulator != nil {
		if err := t.simulator.StartSimulation(busID, routeID); err != nil {
			return err
		}
	}

	t.publishEvent(events.EventTypeRouteStarted, events.RouteEvent{VehicleID: busID, RouteID: routeID, DriverID: driverID})

	log.Info().
		Str("driver", driverID).
		Str("vehicle", busID).
		Str("route", routeID).
		Msg("Route started")

	return nil
}

// StopRoute takes the bus off its route and marks it idle
func (t *Tracker) StopRoute(busID string, reason string) error {
	if _, exists := t.store.Vehicle(busID); !exists {
		return fmt.Errorf("%w: %q", vehiclestate.ErrUnknownVehicle, busID)
	}

	current, assigned := t.release(busID)

	t.store.ApplyStatusChange(busID, ctdf.VehicleStatusIdle, "", vehiclestate.SourceExternal)

	if assigned {
		if t.channel != nil {
			t.send(message.NewRouteStopped(t.clock.Now(), busID, current.routeID, reason))
		}
		t.publishEvent(events.EventTypeRouteStopped, events.RouteEvent{VehicleID: busID, RouteID: current.routeID, DriverID: current.driverID, Reason: reason})
	}

	log.Info().Str("vehicle", busID).Str("reason", reason).Msg("Route stopped")

	return nil
}

// ReportLocation applies a GPS fix from the vehicle itself and forwards it
// on the channel. It overrides the simulation for the remote authority
// window.
func (t *Tracker) ReportLocation(busID string, location ctdf.Location, bearing float64) error {
	vehicle, exists := t.store.Vehicle(busID)
	if !exists {
		return fmt.Errorf("%w: %q", vehiclestate.ErrUnknownVehicle, busID)
	}
	if !vehicle.IsActive() {
		return fmt.Errorf("%w: %q", vehiclestate.ErrVehicleNotActive, busID)
	}
	if !location.Valid() {
		return vehiclestate.ErrInvalidLocation
	}

	bearing = ctdf.NormaliseBearing(bearing)
	t.store.ApplyLocation(busID, vehiclestate.LocationUpdate{
		Location: &location,
		Bearing:  &bearing,
	}, vehiclestate.SourceExternal)

	if t.channel != nil && t.channel.IsConnected() {
		if updated, exists := t.store.Vehicle(busID); exists {
			t.send(message.NewLocationUpdate(t.clock.Now(), &updated))
		}
	}

	return nil
}

// Assignment returns the route and driver the bus was started with
func (t *Tracker) Assignment(busID string) (routeID string, driverID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.assignments[busID]
	return current.routeID, current.driverID, ok
}

func (t *Tracker) handleMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.LocationUpdate:
		location := m.Location()
		heading := m.Heading
		stopIndex := m.CurrentStopIndex
		progress := m.ProgressToNextStop

		t.store.ApplyLocation(m.BusID, vehiclestate.LocationUpdate{
			Location:  &location,
			Bearing:   &heading,
			StopIndex: &stopIndex,
			Progress:  &progress,
			NextStop:  m.NextStop,
		}, vehiclestate.SourceChannel)
	case message.StatusChange:
		status := m.VehicleStatus()
		if status.Valid() && status != ctdf.VehicleStatusActive {
			t.release(m.BusID)
		}
		t.store.ApplyStatusChange(m.BusID, status, m.RouteID, vehiclestate.SourceChannel)
	case message.RouteStarted:
		t.store.ApplyStatusChange(m.BusID, ctdf.VehicleStatusActive, m.RouteID, vehiclestate.SourceChannel)
	case message.RouteStopped:
		t.release(m.BusID)
		t.store.ApplyStatusChange(m.BusID, ctdf.VehicleStatusIdle, "", vehiclestate.SourceChannel)
	case message.ConnectionAck:
		log.Info().Str("client", m.ClientID).Msg("Realtime channel acknowledged")
	case message.Error:
		log.Warn().Str("code", m.Code).Str("message", m.Message).Msg("Realtime server reported error")
	}
}

func (t *Tracker) handleConnectionChange(state channel.ConnectionState) {
	log.Info().Str("state", state.String()).Msg("Realtime channel state changed")

	clientID := ""
	if t.channel != nil {
		clientID = t.channel.ClientID()
	}

	t.publishEvent(events.EventTypeConnectionStateChanged, events.ConnectionEvent{State: state.String(), ClientID: clientID})
}

func (t *Tracker) handleCompletion(completion simulation.Completion) {
	t.mu.Lock()
	current, assigned := t.assignments[completion.VehicleID]
	delete(t.assignments, completion.VehicleID)
	t.mu.Unlock()

	if t.channel != nil {
		t.send(message.NewRouteStopped(t.clock.Now(), completion.VehicleID, completion.RouteID, ReasonCompleted))
	}

	driverID := ""
	if assigned {
		driverID = current.driverID
	}
	t.publishEvent(events.EventTypeRouteCompleted, events.RouteEvent{
		VehicleID: completion.VehicleID,
		RouteID:   completion.RouteID,
		DriverID:  driverID,
		Reason:    ReasonCompleted,
	})
}

// release ends the local simulation of the bus and forgets its assignment.
// It is called before the bus leaves active so no further ticks move it.
func (t *Tracker) release(busID string) (assignment, bool) {
	if t.simulator != nil {
		t.simulator.StopSimulation(busID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current, assigned := t.assignments[busID]
	delete(t.assignments, busID)

	return current, assigned
}

func (t *Tracker) send(msg message.Message) {
	if err := t.channel.Send(msg); err != nil {
		log.Error().Err(err).Str("type", string(msg.MessageType())).Msg("Failed to send realtime message")
	}
}

func (t *Tracker) publishEvent(eventType events.EventType, body interface{}) {
	t.events.Publish(events.Event{
		Type:      eventType,
		Timestamp: t.clock.Now(),
		Body:      body,
	})
}
