package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/util"
)

func VehiclesRouter(router fiber.Router, fleet *Fleet) {
	router.Get("/", func(c *fiber.Ctx) error {
		return listVehicles(c, fleet)
	})
	router.Get("/:identifier", func(c *fiber.Ctx) error {
		return getVehicle(c, fleet)
	})
}

func listVehicles(c *fiber.Ctx, fleet *Fleet) error {
	vehicles := fleet.Snapshot().Vehicles
	filtered := make([]ctdf.Vehicle, len(vehicles))
	copy(filtered, vehicles)

	if routeID := c.Query("route"); routeID != "" {
		util.InPlaceFilter(&filtered, func(vehicle ctdf.Vehicle) bool {
			return vehicle.RouteRef == routeID
		})
	}
	if c.QueryBool("active", false) {
		util.InPlaceFilter(&filtered, func(vehicle ctdf.Vehicle) bool {
			return vehicle.IsActive()
		})
	}

	return sendReduced(c, "Vehicles", filtered)
}

func getVehicle(c *fiber.Ctx, fleet *Fleet) error {
	vehicle, exists := fleet.Snapshot().Vehicle(c.Params("identifier"))
	if !exists {
		return sendError(c, fiber.StatusNotFound, "Could not find Vehicle matching Identifier")
	}

	return sendReduced(c, "Vehicle", vehicle)
}
