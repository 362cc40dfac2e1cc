package tracker

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/api"
	"github.com/travigo/livebus/pkg/events"
	"github.com/travigo/livebus/pkg/realtime/channel"
	"github.com/travigo/livebus/pkg/realtime/simulation"
	"github.com/travigo/livebus/pkg/redis_client"
	"github.com/travigo/livebus/pkg/routedata"
	"github.com/travigo/livebus/pkg/vehiclecache"
	"github.com/travigo/livebus/pkg/vehiclestate"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "tracker",
		Usage: "Track vehicles over the realtime channel and simulate active routes",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the tracker",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "catalog",
						Usage: "YAML or CSV route catalog to load instead of the configured source",
					},
					&cli.StringFlag{
						Name:  "api-listen",
						Value: api.GetListen(),
						Usage: "listen target for the tracking API, disabled when empty",
					},
					&cli.StringSliceFlag{
						Name:  "start",
						Usage: "start a route on boot, as driver:bus:route",
					},
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
					defer cancel()

					var catalog *routedata.Catalog
					var err error
					if path := c.String("catalog"); path != "" {
						catalog, err = routedata.LoadFile(path)
					} else {
						catalog, err = routedata.LoadFromEnvironment(ctx)
					}
					if err != nil {
						return err
					}

					clk := clockwork.NewRealClock()
					store := vehiclestate.New(catalog.Vehicles(), vehiclestate.GetConfig(), clk)

					var publisher events.Publisher = events.Discard
					if redis_client.Configured() {
						if err := redis_client.Connect(); err != nil {
							return err
						}

						queuePublisher, err := events.NewQueuePublisher(redis_client.QueueConnection)
						if err != nil {
							return err
						}
						publisher = queuePublisher

						cache := vehiclecache.New(redis_client.Client, vehiclecache.GetConfig())
						if err := cache.Restore(ctx, store); err != nil {
							log.Error().Err(err).Msg("Failed to restore vehicle cache")
						}
						defer store.Subscribe(cache.Handle)()
					}

					manager := channel.New(channel.GetConfig(), channel.NewWebsocketDialer(), clk)
					engine := simulation.NewEngine(simulation.GetConfig(), catalog, store, clk)

					config := GetConfig()
					t := New(config, Dependencies{
						Routes:    catalog,
						Store:     store,
						Channel:   manager,
						Simulator: engine,
						Events:    publisher,
						Clock:     clk,
					})
					t.Start(ctx)
					defer t.Stop()

					for _, assignment := range c.StringSlice("start") {
						driverID, busID, routeID, err := parseAssignment(assignment)
						if err != nil {
							return err
						}
						if err := t.StartRoute(driverID, busID, routeID); err != nil {
							return err
						}
					}

					if listen := c.String("api-listen"); listen != "" {
						deps := api.Dependencies{
							Store:      store,
							Catalog:    catalog,
							Controller: t,
						}
						if config.EnableRealtimeChannel {
							deps.Channel = manager
						}

						webApp, unsubscribe := api.NewApp(deps)
						defer unsubscribe()

						go func() {
							log.Info().Str("listen", listen).Msg("Starting tracking API")
							if err := webApp.Listen(listen); err != nil {
								log.Error().Err(err).Msg("Tracking API stopped")
							}
						}()
						defer webApp.Shutdown()
					}

					<-ctx.Done()
					log.Info().Msg("Shutting down tracker")

					return nil
				},
			},
		},
	}
}

var errInvalidAssignment = errors.New("assignment must be driver:bus:route")

func parseAssignment(raw string) (string, string, string, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %q", errInvalidAssignment, raw)
	}

	return parts[0], parts[1], parts[2], nil
}
