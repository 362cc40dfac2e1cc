package vehiclecache

import (
	"time"

	"github.com/travigo/livebus/pkg/util"
)

// ChangeDetectionConfig holds thresholds for determining if changes are
// significant
type ChangeDetectionConfig struct {
	// Minimum distance in meters before writing location update
	MinLocationChangeMeters float64
	// Minimum bearing change in degrees before writing
	MinBearingChangeDegrees float64
	// Force a write after this duration even if no changes
	MaxTimeBetweenWrites time.Duration
	// How long a cached vehicle survives without writes
	Expiration time.Duration
}

func DefaultConfig() ChangeDetectionConfig {
	return ChangeDetectionConfig{
		MinLocationChangeMeters: 25,
		MinBearingChangeDegrees: 15,
		MaxTimeBetweenWrites:    5 * time.Minute,
		Expiration:              24 * time.Hour,
	}
}

// GetConfig returns the change detection configuration from environment
// variables or defaults
func GetConfig() ChangeDetectionConfig {
	env := util.GetEnvironmentVariables()
	defaults := DefaultConfig()

	return ChangeDetectionConfig{
		MinLocationChangeMeters: util.EnvironmentFloat(env, "TRAVIGO_CACHE_MIN_LOCATION_CHANGE_METERS", defaults.MinLocationChangeMeters),
		MinBearingChangeDegrees: util.EnvironmentFloat(env, "TRAVIGO_CACHE_MIN_BEARING_CHANGE_DEGREES", defaults.MinBearingChangeDegrees),
		MaxTimeBetweenWrites:    util.EnvironmentDuration(env, "TRAVIGO_CACHE_MAX_TIME_BETWEEN_WRITES", defaults.MaxTimeBetweenWrites),
		Expiration:              util.EnvironmentDuration(env, "TRAVIGO_CACHE_EXPIRATION", defaults.Expiration),
	}
}
