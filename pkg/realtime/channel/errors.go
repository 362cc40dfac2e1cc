package channel

import (
	"errors"

	"github.com/travigo/livebus/pkg/observer"
)

var (
	// ErrTransport is a failed dial, read or write. The manager recovers
	// from it by reconnecting.
	ErrTransport = errors.New("realtime channel transport failure")

	// ErrParse marks an inbound frame that was dropped because it could not
	// be decoded
	ErrParse = errors.New("realtime channel parse failure")

	// ErrReconnectExhausted stops automatic reconnection until Connect is
	// called again
	ErrReconnectExhausted = errors.New("realtime channel reconnect attempts exhausted")

	ErrInvalidURL   = errors.New("invalid realtime channel url")
	ErrDisconnected = errors.New("realtime channel disconnected")

	ErrHandlerPanic = observer.ErrHandlerPanic
)
