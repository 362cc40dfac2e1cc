package channel

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point in time view of the manager for status endpoints
type Status struct {
	State    ConnectionState `json:"state"`
	ClientID string          `json:"clientId"`
	URL      string          `json:"url"`
	Queued   int             `json:"queued"`
	Attempts int             `json:"reconnectAttempts"`
}
