package relay

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "Realtime bus group relay",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the websocket relay server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen address, overrides TRAVIGO_RELAY_LISTEN",
					},
				},
				Action: func(c *cli.Context) error {
					config := GetConfig()
					if listen := c.String("listen"); listen != "" {
						config.Listen = listen
					}

					ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
					defer cancel()

					relay := New(config)
					server := &http.Server{
						Addr:              config.Listen,
						Handler:           relay.Handler(),
						ReadHeaderTimeout: 10 * time.Second,
					}

					go func() {
						<-ctx.Done()

						shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer shutdownCancel()

						server.Shutdown(shutdownCtx)
						relay.Close()
					}()

					log.Info().Str("listen", config.Listen).Str("path", Path).Msg("Starting relay server")

					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}

					return nil
				},
			},
		},
	}
}
