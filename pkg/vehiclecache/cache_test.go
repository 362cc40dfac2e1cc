package vehiclecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/vehiclestate"
)

func fleet() []ctdf.Vehicle {
	return []ctdf.Vehicle{
		{PrimaryIdentifier: "bus-1", RouteRef: "route-1", Status: ctdf.VehicleStatusIdle, Location: ctdf.Location{Latitude: -26.24, Longitude: 27.92}},
		{PrimaryIdentifier: "bus-2", RouteRef: "route-2", Status: ctdf.VehicleStatusIdle, Location: ctdf.Location{Latitude: -26.242, Longitude: 27.95}},
	}
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, DefaultConfig()), server
}

func TestShouldWrite(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	vehicle := fleet()[0]
	cached := newCachedVehicle(vehicle, now)
	config := DefaultConfig()

	t.Run("nothing cached", func(t *testing.T) {
		var missing *CachedVehicle
		write, reason := missing.ShouldWrite(vehicle, now, config)
		assert.True(t, write)
		assert.Equal(t, "new_vehicle", reason)
	})

	t.Run("unchanged", func(t *testing.T) {
		write, _ := cached.ShouldWrite(vehicle, now.Add(time.Minute), config)
		assert.False(t, write)
	})

	t.Run("small movement", func(t *testing.T) {
		moved := vehicle
		moved.Location.Latitude += 0.0001
		write, _ := cached.ShouldWrite(moved, now.Add(time.Minute), config)
		assert.False(t, write)
	})

	t.Run("large movement", func(t *testing.T) {
		moved := vehicle
		moved.Location.Latitude += 0.001
		write, reason := cached.ShouldWrite(moved, now.Add(time.Minute), config)
		assert.True(t, write)
		assert.Contains(t, reason, "location_changed")
	})

	t.Run("bearing wraps around north", func(t *testing.T) {
		turned := vehicle
		turned.Bearing = 350
		write, _ := cached.ShouldWrite(turned, now.Add(time.Minute), config)
		assert.False(t, write)

		turned.Bearing = 340
		write, reason := cached.ShouldWrite(turned, now.Add(time.Minute), config)
		assert.True(t, write)
		assert.Contains(t, reason, "bearing_changed")
	})

	t.Run("status change", func(t *testing.T) {
		active := vehicle
		active.Status = ctdf.VehicleStatusMaintenance
		write, reason := cached.ShouldWrite(active, now.Add(time.Second), config)
		assert.True(t, write)
		assert.Equal(t, "status_changed", reason)
	})

	t.Run("next stop change", func(t *testing.T) {
		approaching := vehicle
		approaching.NextStop = &ctdf.NextStopProjection{StopRef: "s1-2"}
		write, reason := cached.ShouldWrite(approaching, now.Add(time.Second), config)
		assert.True(t, write)
		assert.Equal(t, "next_stop_changed", reason)
	})

	t.Run("max time since write", func(t *testing.T) {
		write, reason := cached.ShouldWrite(vehicle, now.Add(5*time.Minute), config)
		assert.True(t, write)
		assert.Equal(t, "max_time_exceeded", reason)
	})
}

func TestHandleAndRestore(t *testing.T) {
	ctx := context.Background()
	c, server := newTestCache(t)

	clk := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	states := vehiclestate.New(fleet(), vehiclestate.DefaultConfig(), clk)
	states.Subscribe(c.Handle)

	far := ctdf.Location{Latitude: -26.2041, Longitude: 28.0473}
	require.True(t, states.ApplyLocation("bus-1", vehiclestate.LocationUpdate{
		Location: &far,
		Bearing:  vehiclestate.Ptr(80.0),
	}, vehiclestate.SourceExternal))

	assert.True(t, server.Exists("vehicle_state:bus-1"))
	assert.False(t, server.Exists("vehicle_state:bus-2"))

	cached, err := c.Get(ctx, "bus-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, far, cached.LastLocation)
	assert.Equal(t, 80.0, cached.LastBearing)

	t.Run("insignificant updates are not written", func(t *testing.T) {
		nudged := far
		nudged.Longitude += 0.00001
		clk.Advance(10 * time.Second)
		states.ApplyLocation("bus-1", vehiclestate.LocationUpdate{Location: &nudged}, vehiclestate.SourceExternal)

		cached, err := c.Get(ctx, "bus-1")
		require.NoError(t, err)
		assert.Equal(t, far, cached.LastLocation)
	})

	t.Run("restore places vehicles at their cached position", func(t *testing.T) {
		restarted := vehiclestate.New(fleet(), vehiclestate.DefaultConfig(), clk)
		fresh := New(redis.NewClient(&redis.Options{Addr: server.Addr()}), DefaultConfig())

		require.NoError(t, fresh.Restore(ctx, restarted))

		vehicle, _ := restarted.Vehicle("bus-1")
		assert.Equal(t, far, vehicle.Location)
		assert.Equal(t, 80.0, vehicle.Bearing)
		assert.Equal(t, ctdf.VehicleStatusIdle, vehicle.Status)

		untouched, _ := restarted.Vehicle("bus-2")
		assert.Equal(t, fleet()[1].Location, untouched.Location)
	})

	t.Run("missing vehicle", func(t *testing.T) {
		cached, err := c.Get(ctx, "bus-9")
		require.NoError(t, err)
		assert.Nil(t, cached)
	})
}
