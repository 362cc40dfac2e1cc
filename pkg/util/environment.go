package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// EnvironmentBool reads a feature flag. Unrecognised values keep the
// default.
func EnvironmentBool(env map[string]string, key string, defaultValue bool) bool {
	value, ok := env[key]
	if !ok || value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "false", "no", "0", "off":
		return false
	case "true", "yes", "1", "on":
		return true
	}

	return defaultValue
}

func EnvironmentDuration(env map[string]string, key string, defaultValue time.Duration) time.Duration {
	if value := env[key]; value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}

	return defaultValue
}

func EnvironmentFloat(env map[string]string, key string, defaultValue float64) float64 {
	if value := env[key]; value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}

	return defaultValue
}

func EnvironmentInt(env map[string]string, key string, defaultValue int) int {
	if value := env[key]; value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}

	return defaultValue
}

func EnvironmentString(env map[string]string, key string, defaultValue string) string {
	if value := env[key]; value != "" {
		return value
	}

	return defaultValue
}
