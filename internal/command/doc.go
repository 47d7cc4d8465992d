// Package command is the caller-facing request model shared by the MQTT
// and HTTP boundaries.
//
// A Request names an action, a device address and loosely typed
// parameters. Validate checks types and ranges; Submit validates and then
// calls the matching dispatch operation, returning the job ID. Range checks
// live here, not in the dispatcher.
package command
