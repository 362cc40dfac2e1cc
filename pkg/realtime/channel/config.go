package channel

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/util"
)

const defaultURL = "ws://localhost:8080"

type Config struct {
	URL string `validate:"required"`

	// Delay before the first reconnect, multiplied after every failure
	ReconnectInterval   time.Duration `validate:"gt=0"`
	ReconnectMultiplier float64       `validate:"gte=1"`

	// Zero retries forever
	MaxReconnectAttempts int `validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		URL:                  defaultURL,
		ReconnectInterval:    1000 * time.Millisecond,
		ReconnectMultiplier:  1.5,
		MaxReconnectAttempts: 10,
	}
}

// GetConfig returns the channel configuration from environment variables
// or defaults
func GetConfig() Config {
	defaults := DefaultConfig()
	env := util.GetEnvironmentVariables()

	config := Config{
		URL:                  util.EnvironmentString(env, "TRAVIGO_WEBSOCKET_URL", defaults.URL),
		ReconnectInterval:    util.EnvironmentDuration(env, "TRAVIGO_RECONNECT_INTERVAL", defaults.ReconnectInterval),
		ReconnectMultiplier:  util.EnvironmentFloat(env, "TRAVIGO_RECONNECT_MULTIPLIER", defaults.ReconnectMultiplier),
		MaxReconnectAttempts: util.EnvironmentInt(env, "TRAVIGO_RECONNECT_MAX_ATTEMPTS", defaults.MaxReconnectAttempts),
	}

	if err := validator.New().Struct(config); err != nil {
		log.Warn().Err(err).Msg("Invalid realtime channel configuration, using defaults")
		defaults.URL = config.URL
		return defaults
	}

	return config
}
