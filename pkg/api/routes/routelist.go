package routes

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/routedata"
	"golang.org/x/exp/slices"
)

func RoutesRouter(router fiber.Router, catalog *routedata.Catalog) {
	router.Get("/", func(c *fiber.Ctx) error {
		routes := catalog.Routes()

		if c.Query("sort") == "name" {
			slices.SortStableFunc(routes, func(a, b ctdf.Route) int {
				return strings.Compare(a.PrimaryName, b.PrimaryName)
			})
		}

		return sendReduced(c, "Routes", routes)
	})
	router.Get("/:identifier", func(c *fiber.Ctx) error {
		route, exists := catalog.FindRoute(c.Params("identifier"))
		if !exists {
			return sendError(c, fiber.StatusNotFound, "Could not find Route matching Identifier")
		}

		return sendReduced(c, "Route", route)
	})
}
