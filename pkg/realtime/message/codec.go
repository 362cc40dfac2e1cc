package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

var validate = validator.New()

type envelope struct {
	Type Type `json:"type"`
}

// Encode serialises a message with its type tag
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	fields["type"], err = json.Marshal(m.MessageType())
	if err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// Decode parses one frame into its concrete message struct and checks the
// fields its type requires
func Decode(data []byte) (Message, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var m Message
	var err error

	switch e.Type {
	case TypeLocationUpdate:
		m, err = decodeAs[LocationUpdate](data)
	case TypeStatusChange:
		m, err = decodeAs[StatusChange](data)
	case TypeRouteStarted:
		m, err = decodeAs[RouteStarted](data)
	case TypeRouteStopped:
		m, err = decodeAs[RouteStopped](data)
	case TypeConnectionAck:
		m, err = decodeAs[ConnectionAck](data)
	case TypeDriverAuthenticated:
		m, err = decodeAs[DriverAuthenticated](data)
	case TypeError:
		m, err = decodeAs[Error](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}

	if err != nil {
		return nil, err
	}

	return m, nil
}

func decodeAs[T Message](data []byte) (T, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if err := validate.Struct(m); err != nil {
		return m, fmt.Errorf("%w: %s: %w", ErrMalformed, m.MessageType(), err)
	}

	return m, nil
}
