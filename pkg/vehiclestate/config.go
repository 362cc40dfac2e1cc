package vehiclestate

import (
	"time"

	"github.com/travigo/livebus/pkg/util"
)

const defaultRemoteAuthorityWindow = 5 * time.Second

type Config struct {
	// Simulation location updates are ignored for this long after an
	// authoritative one. Zero falls back to plain last writer wins.
	RemoteAuthorityWindow time.Duration
}

func DefaultConfig() Config {
	return Config{RemoteAuthorityWindow: defaultRemoteAuthorityWindow}
}

func GetConfig() Config {
	env := util.GetEnvironmentVariables()

	window := util.EnvironmentDuration(env, "TRAVIGO_REMOTE_AUTHORITY_WINDOW", defaultRemoteAuthorityWindow)
	if window < 0 {
		window = defaultRemoteAuthorityWindow
	}

	return Config{RemoteAuthorityWindow: window}
}
