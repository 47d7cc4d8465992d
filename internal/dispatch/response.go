package dispatch

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

// Token correlates a response with the request that produced it. It is
// carried unchanged from submission to delivery.
type Token struct {
	RequestID int64  `json:"request_id"`
	Channel   string `json:"channel"`
}

// Action names an operation kind.
type Action string

// Operation kinds.
const (
	ActionDiscover      Action = "discover"
	ActionLookUp        Action = "look_up"
	ActionCreateDevice  Action = "create_device"
	ActionSetPower      Action = "set_power"
	ActionSetColorTemp  Action = "set_color_temp"
	ActionSetBrightness Action = "set_brightness"
	ActionSetHSV        Action = "set_hsv"
	ActionSetChildPower Action = "set_child_power"
)

// Actions lists every operation kind.
func Actions() []Action {
	return []Action{
		ActionDiscover, ActionLookUp, ActionCreateDevice, ActionSetPower,
		ActionSetColorTemp, ActionSetBrightness, ActionSetHSV, ActionSetChildPower,
	}
}

// ErrorCode classifies a failed request.
type ErrorCode string

// Failure codes carried in Response.Error.
const (
	CodeUnknownDevice     ErrorCode = "UNKNOWN_DEVICE"
	CodeDeviceError       ErrorCode = "DEVICE_ERROR"
	CodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"
	CodeDispatcherStopped ErrorCode = "DISPATCHER_STOPPED"
)

// ErrorInfo describes why a request failed.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the single result delivered for an accepted request.
//
// Data holds a device.Snapshot (look-up, create), a []device.Snapshot
// (discover) or the device.Ack returned by a mutation.
type Response struct {
	RequestID int64      `json:"request_id"`
	JobID     string     `json:"job_id,omitempty"`
	Action    Action     `json:"action"`
	Address   string     `json:"address,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// Failure builds a failure response outside the worker, for example when a
// boundary rejects a request before it reaches the queue.
func Failure(tok Token, action Action, address string, code ErrorCode, message string) Response {
	return Response{
		RequestID: tok.RequestID,
		Action:    action,
		Address:   address,
		Timestamp: time.Now().UTC(),
		Error:     &ErrorInfo{Code: code, Message: message},
	}
}

// CodeFor maps a job error to its failure code.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, device.ErrUnknownDevice):
		return CodeUnknownDevice
	case errors.Is(err, device.ErrChildIndex), errors.Is(err, device.ErrInvalidAddress):
		return CodeInvalidParameters
	case errors.Is(err, ErrJobPanicked):
		return CodeInternalError
	case errors.Is(err, ErrStopped):
		return CodeDispatcherStopped
	default:
		return CodeDeviceError
	}
}
