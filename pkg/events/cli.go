package events

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/travigo/livebus/pkg/consumer"
	"github.com/travigo/livebus/pkg/elastic_client"
	"github.com/travigo/livebus/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Provides the tracking events runner",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "consume the tracking events queue",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "stats-listen",
						Value: ":3333",
						Usage: "listen target for the queue stats server",
					},
				},
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}
					if err := elastic_client.Connect(false); err != nil {
						return err
					}

					redisConsumer := consumer.RedisConsumer{
						QueueName:       QueueName,
						NumberConsumers: 5,
						BatchSize:       20,
						Timeout:         2 * time.Second,
						Consumer:        NewBatchConsumer(),
						StatsListen:     c.String("stats-listen"),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					cleanerCtx, stopCleaner := context.WithCancel(context.Background())
					defer stopCleaner()
					go RunCleaner(cleanerCtx, NewCleaner(redis_client.QueueConnection), CleanInterval)

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					elastic_client.WaitUntilQueueEmpty()

					return nil
				},
			},
		},
	}
}
