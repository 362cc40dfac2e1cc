package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livebus/pkg/api/routes"
	"github.com/travigo/livebus/pkg/http_server"
	"github.com/travigo/livebus/pkg/routedata"
	"github.com/travigo/livebus/pkg/vehiclestate"
)

// Dependencies of the tracking API. Channel and Controller are optional.
type Dependencies struct {
	Store      *vehiclestate.Store
	Catalog    *routedata.Catalog
	Channel    routes.ChannelStatus
	Controller routes.Controller
}

// NewApp builds the fiber app. The returned func detaches it from the
// store.
func NewApp(deps Dependencies) (*fiber.App, func()) {
	fleet, unsubscribe := routes.NewFleet(deps.Store)

	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(http_server.NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	vehicles := group.Group("/vehicles")
	routes.VehiclesRouter(vehicles, fleet)
	if deps.Controller != nil {
		routes.ControlRouter(vehicles, deps.Controller)
	}

	routes.RoutesRouter(group.Group("/routes"), deps.Catalog)

	routes.StatusRouter(group.Group("/status"), fleet, deps.Channel)

	routes.GTFSRealtimeRouter(group.Group("/gtfsrt"), fleet, deps.Catalog)

	return webApp, unsubscribe
}

func SetupServer(listen string, deps Dependencies) error {
	webApp, unsubscribe := NewApp(deps)
	defer unsubscribe()

	return webApp.Listen(listen)
}
