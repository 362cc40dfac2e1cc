package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livebus/pkg/realtime/channel"
)

// ChannelStatus reports the realtime channel. Nil when the channel is
// disabled.
type ChannelStatus interface {
	Status() channel.Status
}

func StatusRouter(router fiber.Router, fleet *Fleet, status ChannelStatus) {
	router.Get("/", func(c *fiber.Ctx) error {
		snapshot := fleet.Snapshot()

		active := 0
		for _, vehicle := range snapshot.Vehicles {
			if vehicle.IsActive() {
				active++
			}
		}

		response := fiber.Map{
			"version":  snapshot.Version,
			"vehicles": len(snapshot.Vehicles),
			"active":   active,
		}
		if !snapshot.Time.IsZero() {
			response["updated"] = snapshot.Time
		}

		if status != nil {
			response["channel"] = status.Status()
		} else {
			response["channel"] = nil
		}

		return c.JSON(response)
	})
}
