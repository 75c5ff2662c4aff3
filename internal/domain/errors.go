package domain

import "errors"

// Sentinel errors. Match with errors.Is, never on the message.
var (
	// ErrInvalidConfig means an environment value could not be decoded.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidPort means PORT is outside MinPort..MaxPort.
	ErrInvalidPort = errors.New("port out of range")
)

// IsConfigError reports whether err stems from bad startup configuration,
// as opposed to a runtime failure such as a port already in use.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrInvalidPort)
}
