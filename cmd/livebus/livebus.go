package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/events"
	"github.com/travigo/livebus/pkg/realtime/tracker"
	"github.com/travigo/livebus/pkg/relay"
	"github.com/travigo/livebus/pkg/routedata"
	"github.com/urfave/cli/v2"
)

func main() {
	if os.Getenv("TRAVIGO_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("TRAVIGO_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "livebus",
		Description: "Realtime bus tracking - channel client, route simulation, relay and API",

		Commands: []*cli.Command{
			tracker.RegisterCLI(),
			relay.RegisterCLI(),
			routedata.RegisterCLI(),
			events.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
