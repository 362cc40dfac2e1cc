package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config := GetConfig()

		assert.Equal(t, "ws://localhost:8080", config.URL)
		assert.Equal(t, time.Second, config.ReconnectInterval)
		assert.Equal(t, 1.5, config.ReconnectMultiplier)
		assert.Equal(t, 10, config.MaxReconnectAttempts)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TRAVIGO_WEBSOCKET_URL", "wss://tracking.example/ws/buses/")
		t.Setenv("TRAVIGO_RECONNECT_INTERVAL", "250ms")
		t.Setenv("TRAVIGO_RECONNECT_MULTIPLIER", "2")
		t.Setenv("TRAVIGO_RECONNECT_MAX_ATTEMPTS", "3")

		config := GetConfig()

		assert.Equal(t, "wss://tracking.example/ws/buses/", config.URL)
		assert.Equal(t, 250*time.Millisecond, config.ReconnectInterval)
		assert.Equal(t, 2.0, config.ReconnectMultiplier)
		assert.Equal(t, 3, config.MaxReconnectAttempts)
	})

	t.Run("invalid values fall back to defaults", func(t *testing.T) {
		t.Setenv("TRAVIGO_RECONNECT_MULTIPLIER", "0.5")

		config := GetConfig()

		assert.Equal(t, 1.5, config.ReconnectMultiplier)
	})
}
