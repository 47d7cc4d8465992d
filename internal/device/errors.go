package device

import "errors"

// Sentinel errors; check with errors.Is.
var (
	// ErrUnknownDevice is returned for an address never discovered in this process.
	ErrUnknownDevice = errors.New("device: unknown address")

	// ErrUnreachable is returned by drivers when a device does not answer.
	ErrUnreachable = errors.New("device: unreachable")

	// ErrChildIndex is returned when a child index is outside the device's children.
	ErrChildIndex = errors.New("device: child index out of range")

	// ErrUnsupported is returned when a device lacks the requested capability.
	ErrUnsupported = errors.New("device: operation not supported")

	// ErrInvalidAddress is returned for an empty address.
	ErrInvalidAddress = errors.New("device: invalid address")
)
