// Package vehiclestate is the single in-memory view of every vehicle. Both
// the simulation and the realtime channel write into it and every applied
// update is broadcast to subscribers as a full snapshot.
package vehiclestate

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/observer"
)

// Snapshot is the state of the whole fleet after one applied update
type Snapshot struct {
	Version  uint64
	Time     time.Time
	Changed  string
	Source   Source
	Vehicles []ctdf.Vehicle
}

func (s Snapshot) Vehicle(id string) (ctdf.Vehicle, bool) {
	for _, vehicle := range s.Vehicles {
		if vehicle.PrimaryIdentifier == id {
			return vehicle, true
		}
	}
	return ctdf.Vehicle{}, false
}

func (s Snapshot) clone() Snapshot {
	var clone Snapshot
	if err := copier.CopyWithOption(&clone, &s, copier.Option{DeepCopy: true}); err != nil {
		log.Error().Err(err).Msg("Failed to copy vehicle snapshot")
	}
	clone.Time = s.Time
	return clone
}

type Store struct {
	config Config
	clock  clockwork.Clock

	mu              sync.Mutex
	vehicles        map[string]*ctdf.Vehicle
	order           []string
	authoritativeAt map[string]time.Time
	version         uint64

	snapshots observer.Ordered[Snapshot]
	errors    observer.Set[error]
}

// New seeds the store with the fleet. Vehicles keep the order given.
func New(vehicles []ctdf.Vehicle, config Config, clk clockwork.Clock) *Store {
	store := &Store{
		config:          config,
		clock:           clk,
		vehicles:        map[string]*ctdf.Vehicle{},
		authoritativeAt: map[string]time.Time{},
	}

	for _, vehicle := range vehicles {
		if _, exists := store.vehicles[vehicle.PrimaryIdentifier]; exists {
			continue
		}

		seeded := cloneVehicle(&vehicle)
		enforceInvariants(seeded)

		store.vehicles[seeded.PrimaryIdentifier] = seeded
		store.order = append(store.order, seeded.PrimaryIdentifier)
	}

	return store
}

// Subscribe registers a handler for every broadcast. Each call gets its own
// deep copy of the snapshot.
func (s *Store) Subscribe(handler observer.Handler[Snapshot]) func() {
	return s.snapshots.Subscribe(func(snapshot Snapshot) {
		handler(snapshot.clone())
	})
}

// OnError receives subscriber failures
func (s *Store) OnError(handler observer.Handler[error]) func() {
	return s.errors.Subscribe(handler)
}

func (s *Store) Vehicle(id string) (ctdf.Vehicle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicle, exists := s.vehicles[id]
	if !exists {
		return ctdf.Vehicle{}, false
	}

	return *cloneVehicle(vehicle), true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked("", SourceSimulation)
}

// ApplyLocation merges movement fields into a vehicle
func (s *Store) ApplyLocation(vehicleID string, update LocationUpdate, source Source) bool {
	return s.Apply(vehicleID, Update{LocationUpdate: update, Source: source})
}

// ApplyStatusChange sets the status and, when routeID is not empty, the
// assigned route
func (s *Store) ApplyStatusChange(vehicleID string, status ctdf.VehicleStatus, routeID string, source Source) bool {
	update := Update{Source: source, Status: status}
	if routeID != "" {
		update.RouteRef = &routeID
	}

	return s.Apply(vehicleID, update)
}

// Apply merges a partial update into a vehicle and broadcasts once. Unknown
// vehicles and invalid fields are ignored. An update where nothing applies,
// including a simulated location held back by the remote authority window,
// is not broadcast. It reports whether anything was applied.
func (s *Store) Apply(vehicleID string, update Update) bool {
	s.mu.Lock()

	vehicle, exists := s.vehicles[vehicleID]
	if !exists {
		s.mu.Unlock()
		log.Debug().Str("vehicle", vehicleID).Msg("Ignoring update for unknown vehicle")
		return false
	}

	now := s.clock.Now()
	applied := false

	if !update.LocationUpdate.empty() {
		if s.suppressedLocked(vehicleID, update.Source, now) {
			log.Debug().Str("vehicle", vehicleID).Msg("Ignoring simulated location during remote authority window")
		} else {
			if mergeLocation(vehicle, update.LocationUpdate) {
				applied = true
			}
			if update.Source.Authoritative() {
				s.authoritativeAt[vehicleID] = now
			}
		}
	}

	if update.RouteRef != nil {
		vehicle.RouteRef = *update.RouteRef
		applied = true
	}

	if update.Status != "" {
		if update.Status.Valid() {
			vehicle.Status = update.Status
			applied = true
		} else {
			log.Debug().Str("vehicle", vehicleID).Str("status", string(update.Status)).Msg("Ignoring invalid status")
		}
	}

	if !applied {
		s.mu.Unlock()
		return false
	}

	enforceInvariants(vehicle)

	s.version++
	s.snapshots.Enqueue(s.snapshotLocked(vehicleID, update.Source))
	s.mu.Unlock()

	s.snapshots.Drain(s.handlerPanic)

	return true
}

func (s *Store) suppressedLocked(vehicleID string, source Source, now time.Time) bool {
	if source.Authoritative() || s.config.RemoteAuthorityWindow <= 0 {
		return false
	}

	last, exists := s.authoritativeAt[vehicleID]
	if !exists {
		return false
	}

	return now.Sub(last) < s.config.RemoteAuthorityWindow
}

func (s *Store) snapshotLocked(changed string, source Source) Snapshot {
	snapshot := Snapshot{
		Version:  s.version,
		Time:     s.clock.Now(),
		Changed:  changed,
		Source:   source,
		Vehicles: make([]ctdf.Vehicle, 0, len(s.order)),
	}

	for _, id := range s.order {
		snapshot.Vehicles = append(snapshot.Vehicles, *cloneVehicle(s.vehicles[id]))
	}

	return snapshot
}

func (s *Store) handlerPanic(recovered any) {
	err := observer.PanicError(recovered)
	log.Error().Err(err).Msg("Vehicle state subscriber panicked")

	s.errors.Publish(err, func(recovered any) {
		log.Error().Err(observer.PanicError(recovered)).Msg("Vehicle state error handler panicked")
	})
}

func mergeLocation(vehicle *ctdf.Vehicle, update LocationUpdate) bool {
	applied := false

	if update.Location != nil && update.Location.Valid() {
		vehicle.Location = *update.Location
		applied = true
	}

	if update.Bearing != nil && validBearing(*update.Bearing) {
		vehicle.Bearing = *update.Bearing
		applied = true
	}

	if update.StopIndex != nil && *update.StopIndex >= 0 {
		ensureSegmentProgress(vehicle).StopIndex = *update.StopIndex
		applied = true
	}

	if update.Progress != nil && validProgress(*update.Progress) {
		ensureSegmentProgress(vehicle).Progress = *update.Progress
		applied = true
	}

	if update.ClearNextStop {
		vehicle.NextStop = nil
		applied = true
	} else if update.NextStop != nil && update.NextStop.ETA >= 0 {
		nextStop := *update.NextStop
		vehicle.NextStop = &nextStop
		applied = true
	}

	return applied
}

func ensureSegmentProgress(vehicle *ctdf.Vehicle) *ctdf.SegmentProgress {
	if vehicle.SegmentProgress == nil {
		vehicle.SegmentProgress = &ctdf.SegmentProgress{}
	}
	return vehicle.SegmentProgress
}

// enforceInvariants keeps segment progress and the next stop projection
// only on vehicles that are active on a route
func enforceInvariants(vehicle *ctdf.Vehicle) {
	if !vehicle.IsActive() || vehicle.RouteRef == "" {
		vehicle.SegmentProgress = nil
		vehicle.NextStop = nil
		return
	}

	ensureSegmentProgress(vehicle)
}

func cloneVehicle(vehicle *ctdf.Vehicle) *ctdf.Vehicle {
	clone := *vehicle

	if vehicle.NextStop != nil {
		nextStop := *vehicle.NextStop
		clone.NextStop = &nextStop
	}
	if vehicle.SegmentProgress != nil {
		progress := *vehicle.SegmentProgress
		clone.SegmentProgress = &progress
	}

	return &clone
}
