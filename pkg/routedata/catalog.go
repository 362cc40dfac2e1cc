// Package routedata holds the immutable route and fleet reference data
// every other component reads from.
package routedata

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/travigo/livebus/pkg/ctdf"
)

var ErrInvalidCatalog = errors.New("invalid route catalog")

// RouteFinder is the read-only view of the catalog the simulation and the
// tracker depend on
type RouteFinder interface {
	FindRoute(id string) (*ctdf.Route, bool)
}

type Catalog struct {
	routes     map[string]*ctdf.Route
	routeOrder []string

	vehicles []ctdf.Vehicle
}

type catalogDocument struct {
	Routes   []ctdf.Route   `yaml:"routes"`
	Vehicles []ctdf.Vehicle `yaml:"vehicles"`
}

var validate = validator.New()

// New validates the routes and vehicles and builds a catalog from them.
// Vehicles always start idle unless flagged for maintenance.
func New(routes []ctdf.Route, vehicles []ctdf.Vehicle) (*Catalog, error) {
	catalog := &Catalog{
		routes: map[string]*ctdf.Route{},
	}

	for i := range routes {
		route := cloneRoute(&routes[i])

		if err := validate.Struct(route); err != nil {
			return nil, fmt.Errorf("%w: route %q: %w", ErrInvalidCatalog, route.PrimaryIdentifier, err)
		}
		if _, exists := catalog.routes[route.PrimaryIdentifier]; exists {
			return nil, fmt.Errorf("%w: duplicate route %q", ErrInvalidCatalog, route.PrimaryIdentifier)
		}
		for _, stop := range route.Stops {
			if !stop.Location.Valid() {
				return nil, fmt.Errorf("%w: route %q stop %q has invalid coordinates", ErrInvalidCatalog, route.PrimaryIdentifier, stop.PrimaryIdentifier)
			}
		}

		catalog.routes[route.PrimaryIdentifier] = route
		catalog.routeOrder = append(catalog.routeOrder, route.PrimaryIdentifier)
	}

	seenVehicles := map[string]bool{}
	for _, vehicle := range vehicles {
		if err := validate.Struct(vehicle); err != nil {
			return nil, fmt.Errorf("%w: vehicle %q: %w", ErrInvalidCatalog, vehicle.PrimaryIdentifier, err)
		}
		if seenVehicles[vehicle.PrimaryIdentifier] {
			return nil, fmt.Errorf("%w: duplicate vehicle %q", ErrInvalidCatalog, vehicle.PrimaryIdentifier)
		}
		if vehicle.RouteRef != "" {
			if _, exists := catalog.routes[vehicle.RouteRef]; !exists {
				return nil, fmt.Errorf("%w: vehicle %q references unknown route %q", ErrInvalidCatalog, vehicle.PrimaryIdentifier, vehicle.RouteRef)
			}
		}
		seenVehicles[vehicle.PrimaryIdentifier] = true

		if vehicle.Status != ctdf.VehicleStatusMaintenance {
			vehicle.Status = ctdf.VehicleStatusIdle
		}
		vehicle.Bearing = ctdf.NormaliseBearing(vehicle.Bearing)
		vehicle.NextStop = nil
		vehicle.SegmentProgress = nil

		catalog.vehicles = append(catalog.vehicles, vehicle)
	}

	return catalog, nil
}

// FindRoute returns a copy of the route so callers cannot change the
// catalog
func (c *Catalog) FindRoute(id string) (*ctdf.Route, bool) {
	route, exists := c.routes[id]
	if !exists {
		return nil, false
	}

	return cloneRoute(route), true
}

// Routes in catalog order
func (c *Catalog) Routes() []ctdf.Route {
	routes := make([]ctdf.Route, 0, len(c.routeOrder))
	for _, id := range c.routeOrder {
		routes = append(routes, *cloneRoute(c.routes[id]))
	}

	return routes
}

// Vehicles returns the initial state of the fleet
func (c *Catalog) Vehicles() []ctdf.Vehicle {
	return append([]ctdf.Vehicle(nil), c.vehicles...)
}

// WithVehicles returns a catalog with the same routes and a different fleet
func (c *Catalog) WithVehicles(vehicles []ctdf.Vehicle) (*Catalog, error) {
	return New(c.Routes(), vehicles)
}

func cloneRoute(route *ctdf.Route) *ctdf.Route {
	clone := *route
	clone.Stops = append([]ctdf.Stop(nil), route.Stops...)

	return &clone
}
