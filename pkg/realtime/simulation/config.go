package simulation

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/util"
)

type Config struct {
	TickInterval time.Duration `validate:"gt=0"`

	// Fraction of a segment travelled per tick
	Step float64 `validate:"gt=0,lte=1"`

	// Assumed travel time of one segment used for ETAs
	SecondsPerSegment float64 `validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		TickInterval:      100 * time.Millisecond,
		Step:              0.05,
		SecondsPerSegment: 2,
	}
}

// GetConfig returns the simulation configuration from environment variables
// or defaults
func GetConfig() Config {
	defaults := DefaultConfig()
	env := util.GetEnvironmentVariables()

	config := Config{
		TickInterval:      util.EnvironmentDuration(env, "TRAVIGO_SIMULATION_TICK", defaults.TickInterval),
		Step:              util.EnvironmentFloat(env, "TRAVIGO_SIMULATION_STEP", defaults.Step),
		SecondsPerSegment: util.EnvironmentFloat(env, "TRAVIGO_SIMULATION_SECONDS_PER_SEGMENT", defaults.SecondsPerSegment),
	}

	if err := validator.New().Struct(config); err != nil {
		log.Warn().Err(err).Msg("Invalid simulation configuration, using defaults")
		return defaults
	}

	return config
}
