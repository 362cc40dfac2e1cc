package api

import "github.com/travigo/livebus/pkg/util"

// GetListen returns the API listen address, empty when the API is disabled
func GetListen() string {
	return util.EnvironmentString(util.GetEnvironmentVariables(), "TRAVIGO_API_LISTEN", "")
}
