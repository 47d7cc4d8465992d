package command

import "errors"

// Domain errors for the command package.
var (
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("command: invalid request")

	// ErrUnknownAction is returned for an action the bridge does not support.
	ErrUnknownAction = errors.New("command: unknown action")
)
