// Package vehiclecache keeps the last known state of every vehicle in Redis
// so a restarted tracker can place its fleet where it was.
package vehiclecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/vehiclestate"
)

const writeTimeout = 2 * time.Second

// CachedVehicle holds the last written state of a vehicle in Redis
type CachedVehicle struct {
	PrimaryIdentifier string             `json:"primary_identifier"`
	RouteRef          string             `json:"route_ref"`
	Status            ctdf.VehicleStatus `json:"status"`
	NextStopRef       string             `json:"next_stop_ref"`
	LastLocation      ctdf.Location      `json:"last_location"`
	LastBearing       float64            `json:"last_bearing"`
	LastWrite         time.Time          `json:"last_write"`
}

func newCachedVehicle(vehicle ctdf.Vehicle, at time.Time) *CachedVehicle {
	cached := &CachedVehicle{
		PrimaryIdentifier: vehicle.PrimaryIdentifier,
		RouteRef:          vehicle.RouteRef,
		Status:            vehicle.Status,
		LastLocation:      vehicle.Location,
		LastBearing:       vehicle.Bearing,
		LastWrite:         at,
	}
	if vehicle.NextStop != nil {
		cached.NextStopRef = vehicle.NextStop.StopRef
	}

	return cached
}

// ShouldWrite determines if the vehicle changed enough since the cached
// write to be written again
func (cached *CachedVehicle) ShouldWrite(vehicle ctdf.Vehicle, currentTime time.Time, config ChangeDetectionConfig) (bool, string) {
	if cached == nil {
		return true, "new_vehicle"
	}

	if currentTime.Sub(cached.LastWrite) >= config.MaxTimeBetweenWrites {
		return true, "max_time_exceeded"
	}

	if cached.Status != vehicle.Status {
		return true, "status_changed"
	}

	if cached.RouteRef != vehicle.RouteRef {
		return true, "route_changed"
	}

	nextStopRef := ""
	if vehicle.NextStop != nil {
		nextStopRef = vehicle.NextStop.StopRef
	}
	if cached.NextStopRef != nextStopRef {
		return true, "next_stop_changed"
	}

	distance := cached.LastLocation.Distance(vehicle.Location)
	if distance >= config.MinLocationChangeMeters {
		return true, fmt.Sprintf("location_changed_%.1fm", distance)
	}

	if difference := ctdf.BearingDifference(cached.LastBearing, vehicle.Bearing); difference >= config.MinBearingChangeDegrees {
		return true, fmt.Sprintf("bearing_changed_%.1f", difference)
	}

	return false, "no_significant_changes"
}

type Cache struct {
	config ChangeDetectionConfig
	store  *cache.Cache[string]

	mu      sync.Mutex
	written map[string]*CachedVehicle
}

func New(client *redis.Client, config ChangeDetectionConfig) *Cache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(config.Expiration))

	return &Cache{
		config:  config,
		store:   cache.New[string](redisStore),
		written: map[string]*CachedVehicle{},
	}
}

func cacheKey(vehicleID string) string {
	return fmt.Sprintf("vehicle_state:%s", vehicleID)
}

// Get returns the cached state of a vehicle, nil when nothing is cached
func (c *Cache) Get(ctx context.Context, vehicleID string) (*CachedVehicle, error) {
	value, err := c.store.Get(ctx, cacheKey(vehicleID))
	if errors.Is(err, store.NotFound{}) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached CachedVehicle
	if err := json.Unmarshal([]byte(value), &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

func (c *Cache) set(ctx context.Context, cached *CachedVehicle) error {
	value, err := json.Marshal(cached)
	if err != nil {
		return err
	}

	return c.store.Set(ctx, cacheKey(cached.PrimaryIdentifier), string(value))
}

// Handle is a Store subscriber. It writes the vehicle named by the snapshot
// when its change is significant.
func (c *Cache) Handle(snapshot vehiclestate.Snapshot) {
	if snapshot.Changed == "" {
		return
	}

	vehicle, exists := snapshot.Vehicle(snapshot.Changed)
	if !exists {
		return
	}

	c.mu.Lock()
	cached := c.written[vehicle.PrimaryIdentifier]
	write, reason := cached.ShouldWrite(vehicle, snapshot.Time, c.config)
	if !write {
		c.mu.Unlock()
		return
	}
	updated := newCachedVehicle(vehicle, snapshot.Time)
	c.written[vehicle.PrimaryIdentifier] = updated
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.set(ctx, updated); err != nil {
		log.Error().Err(err).Str("vehicle", vehicle.PrimaryIdentifier).Msg("Failed to write vehicle cache")

		c.mu.Lock()
		if c.written[vehicle.PrimaryIdentifier] == updated {
			c.written[vehicle.PrimaryIdentifier] = cached
		}
		c.mu.Unlock()
		return
	}

	log.Debug().Str("vehicle", vehicle.PrimaryIdentifier).Str("reason", reason).Msg("Wrote vehicle cache")
}

// Restore places every vehicle of the store at its cached position. Routes
// in progress are not resumed so every restored vehicle stays idle.
func (c *Cache) Restore(ctx context.Context, states *vehiclestate.Store) error {
	restored := 0

	for _, vehicle := range states.Snapshot().Vehicles {
		cached, err := c.Get(ctx, vehicle.PrimaryIdentifier)
		if err != nil {
			return fmt.Errorf("restore %s: %w", vehicle.PrimaryIdentifier, err)
		}
		if cached == nil || !cached.LastLocation.Valid() {
			continue
		}

		location := cached.LastLocation
		bearing := ctdf.NormaliseBearing(cached.LastBearing)
		states.ApplyLocation(vehicle.PrimaryIdentifier, vehiclestate.LocationUpdate{
			Location: &location,
			Bearing:  &bearing,
		}, vehiclestate.SourceSimulation)

		c.mu.Lock()
		c.written[vehicle.PrimaryIdentifier] = cached
		c.mu.Unlock()

		restored++
	}

	log.Info().Int("vehicles", restored).Msg("Restored vehicle cache")

	return nil
}
