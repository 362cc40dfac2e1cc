package routes

import (
	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/routedata"
	"github.com/travigo/livebus/pkg/vehiclestate"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const gtfsRealtimeVersion = "2.0"

func GTFSRealtimeRouter(router fiber.Router, fleet *Fleet, routes routedata.RouteFinder) {
	router.Get("/vehicle-positions", func(c *fiber.Ctx) error {
		feed := VehiclePositionsFeed(fleet.Snapshot(), routes)

		if c.Query("format") == "json" {
			data, err := protojson.Marshal(feed)
			if err != nil {
				return sendError(c, fiber.StatusInternalServerError, err.Error())
			}

			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(data)
		}

		data, err := proto.Marshal(feed)
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, err.Error())
		}

		c.Set(fiber.HeaderContentType, "application/x-protobuf")
		return c.Send(data)
	})
}

// VehiclePositionsFeed builds a full dataset GTFS-RT feed with one entity
// per vehicle that has a valid position
func VehiclePositionsFeed(snapshot vehiclestate.Snapshot, routes routedata.RouteFinder) *gtfs.FeedMessage {
	timestamp := uint64(snapshot.Time.Unix())
	if snapshot.Time.IsZero() {
		timestamp = 0
	}

	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(timestamp),
		},
	}

	for _, vehicle := range snapshot.Vehicles {
		if !vehicle.Location.Valid() {
			continue
		}

		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(vehicle.PrimaryIdentifier),
			Vehicle: vehiclePosition(vehicle, routes, timestamp),
		})
	}

	return feed
}

func vehiclePosition(vehicle ctdf.Vehicle, routes routedata.RouteFinder, timestamp uint64) *gtfs.VehiclePosition {
	position := &gtfs.VehiclePosition{
		Vehicle: &gtfs.VehicleDescriptor{
			Id:    proto.String(vehicle.PrimaryIdentifier),
			Label: proto.String(vehicle.PrimaryName),
		},
		Position: &gtfs.Position{
			Latitude:  proto.Float32(float32(vehicle.Location.Latitude)),
			Longitude: proto.Float32(float32(vehicle.Location.Longitude)),
			Bearing:   proto.Float32(float32(vehicle.Bearing)),
		},
		Timestamp: proto.Uint64(timestamp),
	}
	if vehicle.Registration != "" {
		position.Vehicle.LicensePlate = proto.String(vehicle.Registration)
	}

	if !vehicle.IsActive() || vehicle.RouteRef == "" {
		return position
	}

	position.Trip = &gtfs.TripDescriptor{
		RouteId: proto.String(vehicle.RouteRef),
	}

	if vehicle.SegmentProgress == nil {
		return position
	}

	route, exists := routes.FindRoute(vehicle.RouteRef)
	if !exists {
		return position
	}

	stopIndex := vehicle.SegmentProgress.StopIndex
	status := gtfs.VehiclePosition_IN_TRANSIT_TO
	if vehicle.SegmentProgress.Progress == 0 || stopIndex >= route.LastStopIndex() {
		status = gtfs.VehiclePosition_STOPPED_AT
	} else {
		stopIndex++
	}
	if stopIndex > route.LastStopIndex() {
		stopIndex = route.LastStopIndex()
	}

	// GTFS stop sequences start at 1
	position.CurrentStopSequence = proto.Uint32(uint32(stopIndex + 1))
	position.StopId = proto.String(route.Stops[stopIndex].PrimaryIdentifier)
	position.CurrentStatus = status.Enum()

	return position
}
