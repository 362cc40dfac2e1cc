package tracker

import (
	"github.com/travigo/livebus/pkg/util"
)

type Config struct {
	EnableRealtimeChannel bool
	EnableLocalSimulation bool
}

func DefaultConfig() Config {
	return Config{
		EnableRealtimeChannel: true,
		EnableLocalSimulation: true,
	}
}

// GetConfig returns the feature flags from environment variables or
// defaults
func GetConfig() Config {
	env := util.GetEnvironmentVariables()
	defaults := DefaultConfig()

	return Config{
		EnableRealtimeChannel: util.EnvironmentBool(env, "TRAVIGO_ENABLE_REALTIME_CHANNEL", defaults.EnableRealtimeChannel),
		EnableLocalSimulation: util.EnvironmentBool(env, "TRAVIGO_ENABLE_LOCAL_SIMULATION", defaults.EnableLocalSimulation),
	}
}
