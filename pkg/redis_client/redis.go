package redis_client

import (
	"context"
	"strconv"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/util"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const defaultConnectionAddress = "localhost:6379"
const defaultConnectionPassword = ""
const defaultDatabase = 0

const queueConnectionTag = "livebus"

// Configured reports whether a redis address has been set in the environment
func Configured() bool {
	return util.GetEnvironmentVariables()["TRAVIGO_REDIS_ADDRESS"] != ""
}

func Connect() error {
	address := defaultConnectionAddress
	password := defaultConnectionPassword
	database := defaultDatabase

	env := util.GetEnvironmentVariables()

	if env["TRAVIGO_REDIS_ADDRESS"] != "" {
		address = env["TRAVIGO_REDIS_ADDRESS"]
	}

	if env["TRAVIGO_REDIS_PASSWORD"] != "" {
		password = env["TRAVIGO_REDIS_PASSWORD"]
	}

	if env["TRAVIGO_REDIS_DATABASE"] != "" {
		if n, err := strconv.Atoi(env["TRAVIGO_REDIS_DATABASE"]); err == nil {
			database = n
		} else {
			return err
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       database,
	})

	return UseClient(client)
}

// UseClient sets up the shared client and queue connection from an existing
// redis client
func UseClient(client *redis.Client) error {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return err
	}

	queueErrors := make(chan error, 10)
	queueConnection, err := rmq.OpenConnectionWithRedisClient(queueConnectionTag, client, queueErrors)
	if err != nil {
		return err
	}

	go func() {
		for err := range queueErrors {
			log.Error().Err(err).Msg("Queue connection error")
		}
	}()

	Client = client
	QueueConnection = queueConnection

	log.Info().Str("address", client.Options().Addr).Msg("Redis client connected")

	return nil
}
