package routedata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/database"
	"github.com/travigo/livebus/pkg/util"
)

// LoadFromEnvironment picks the catalog source. TRAVIGO_ROUTES_FILE wins,
// then MongoDB when configured, then the built-in catalog.
// TRAVIGO_FLEET_FILE optionally replaces the fleet with a YAML vehicles list.
func LoadFromEnvironment(ctx context.Context) (*Catalog, error) {
	env := util.GetEnvironmentVariables()

	catalog, err := loadRoutes(ctx, env)
	if err != nil {
		return nil, err
	}

	if fleetFile := env["TRAVIGO_FLEET_FILE"]; fleetFile != "" {
		file, err := os.Open(fleetFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		fleet, err := LoadYAML(file)
		if err != nil {
			return nil, fmt.Errorf("loading fleet file %s: %w", fleetFile, err)
		}

		catalog, err = catalog.WithVehicles(fleet.Vehicles())
		if err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("routes", len(catalog.Routes())).
		Int("vehicles", len(catalog.Vehicles())).
		Msg("Loaded route catalog")

	return catalog, nil
}

func loadRoutes(ctx context.Context, env map[string]string) (*Catalog, error) {
	if routesFile := env["TRAVIGO_ROUTES_FILE"]; routesFile != "" {
		return LoadFile(routesFile)
	}

	if database.Configured() {
		instance, err := database.Connect(ctx)
		if err != nil {
			return nil, err
		}
		defer instance.Disconnect(context.Background())

		return LoadMongo(ctx, instance)
	}

	return LoadDefault()
}

func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(file)
	case ".yaml", ".yml":
		return LoadYAML(file)
	default:
		return nil, fmt.Errorf("unsupported route catalog format %q", filepath.Ext(path))
	}
}
