package routedata

import (
	"context"
	"errors"
	"fmt"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/database"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "routes",
		Usage: "Inspect and import the route catalog",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list the configured routes and fleet",
				Action: func(c *cli.Context) error {
					catalog, err := LoadFromEnvironment(c.Context)
					if err != nil {
						return err
					}

					for _, route := range catalog.Routes() {
						fmt.Println(route.String())
					}
					for _, vehicle := range catalog.Vehicles() {
						fmt.Printf("%s %s on %s\n", vehicle.PrimaryIdentifier, vehicle.Registration, vehicle.RouteRef)
					}

					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "print a single route",
				ArgsUsage: "<route id>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return errors.New("route id is required")
					}

					catalog, err := LoadFromEnvironment(c.Context)
					if err != nil {
						return err
					}

					route, exists := catalog.FindRoute(c.Args().First())
					if !exists {
						return fmt.Errorf("route %q not found", c.Args().First())
					}

					pretty.Println(route)

					return nil
				},
			},
			{
				Name:  "import",
				Usage: "validate a YAML or CSV catalog and upsert it into MongoDB",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "catalog file to import",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					catalog, err := LoadFile(c.String("file"))
					if err != nil {
						return err
					}

					instance, err := database.Connect(c.Context)
					if err != nil {
						return err
					}
					defer instance.Disconnect(context.Background())

					if err := StoreMongo(c.Context, instance, catalog); err != nil {
						return err
					}

					log.Info().
						Int("routes", len(catalog.Routes())).
						Int("vehicles", len(catalog.Vehicles())).
						Msg("Imported route catalog")

					return nil
				},
			},
		},
	}
}
