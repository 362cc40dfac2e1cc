package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/realtime/simulation"
	"github.com/travigo/livebus/pkg/vehiclestate"
)

// Controller runs the driver operations behind the control endpoints
type Controller interface {
	StartRoute(driverID string, busID string, routeID string) error
	StopRoute(busID string, reason string) error
	ReportLocation(busID string, location ctdf.Location, bearing float64) error
}

type startRouteRequest struct {
	DriverID string `json:"driverId" validate:"required"`
	RouteID  string `json:"routeId" validate:"required"`
}

type stopRouteRequest struct {
	Reason string `json:"reason"`
}

type locationRequest struct {
	Latitude  float64 `json:"lat" validate:"latitude"`
	Longitude float64 `json:"lng" validate:"longitude"`
	Heading   float64 `json:"heading"`
}

func ControlRouter(router fiber.Router, controller Controller) {
	router.Post("/:identifier/start", func(c *fiber.Ctx) error {
		var request startRouteRequest
		if err := parseBody(c, &request); err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}

		return sendControlResult(c, controller.StartRoute(request.DriverID, c.Params("identifier"), request.RouteID))
	})

	router.Post("/:identifier/stop", func(c *fiber.Ctx) error {
		var request stopRouteRequest
		if len(c.Body()) > 0 {
			if err := parseBody(c, &request); err != nil {
				return sendError(c, fiber.StatusBadRequest, err.Error())
			}
		}

		return sendControlResult(c, controller.StopRoute(c.Params("identifier"), request.Reason))
	})

	router.Post("/:identifier/location", func(c *fiber.Ctx) error {
		var request locationRequest
		if err := parseBody(c, &request); err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}

		location := ctdf.Location{Latitude: request.Latitude, Longitude: request.Longitude}
		return sendControlResult(c, controller.ReportLocation(c.Params("identifier"), location, request.Heading))
	})
}

func parseBody(c *fiber.Ctx, request interface{}) error {
	if err := c.BodyParser(request); err != nil {
		return err
	}

	return validate.Struct(request)
}

func sendControlResult(c *fiber.Ctx, err error) error {
	switch {
	case err == nil:
		c.SendStatus(fiber.StatusAccepted)
		return c.JSON(fiber.Map{
			"status": "accepted",
		})
	case errors.Is(err, vehiclestate.ErrUnknownVehicle), errors.Is(err, simulation.ErrMissingRoute):
		return sendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, vehiclestate.ErrVehicleNotActive):
		return sendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, vehiclestate.ErrInvalidLocation):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
}
