package relay

import (
	"time"

	"github.com/travigo/livebus/pkg/util"
)

const Path = "/ws/buses/"

type Config struct {
	Listen       string
	SendBuffer   int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Listen:       ":8080",
		SendBuffer:   64,
		WriteTimeout: 10 * time.Second,
	}
}

func GetConfig() Config {
	env := util.GetEnvironmentVariables()
	defaults := DefaultConfig()

	config := Config{
		Listen:       util.EnvironmentString(env, "TRAVIGO_RELAY_LISTEN", defaults.Listen),
		SendBuffer:   util.EnvironmentInt(env, "TRAVIGO_RELAY_SEND_BUFFER", defaults.SendBuffer),
		WriteTimeout: util.EnvironmentDuration(env, "TRAVIGO_RELAY_WRITE_TIMEOUT", defaults.WriteTimeout),
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}

	return config
}
