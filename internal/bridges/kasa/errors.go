package kasa

import "errors"

// Domain errors for the Kasa bridge package.
var (
	// ErrNoMQTTClient is returned when the bridge is created without an
	// MQTT client.
	ErrNoMQTTClient = errors.New("kasa: MQTT client is required")

	// ErrNoDispatcher is returned when the bridge is created without a
	// dispatcher.
	ErrNoDispatcher = errors.New("kasa: dispatcher is required")

	// ErrInvalidMessage is returned when a request payload cannot be parsed.
	ErrInvalidMessage = errors.New("kasa: invalid request message")

	// ErrUnknownTopic is returned for a message on a topic the bridge does
	// not own.
	ErrUnknownTopic = errors.New("kasa: unknown topic")
)
