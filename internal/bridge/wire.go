// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bridge carries the barometer operations over MQTT: callers publish
// a Call, the producer answers with a Reply on the caller's reply topic and
// streams measurement events on a shared topic.
package bridge

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/sensors"
	"github.com/relabs-tech/barometer/internal/session"
)

// Method names, identical to the facade operations.
const (
	MethodGetMeasurement          = "getMeasurement"
	MethodIsAvailable             = "isAvailable"
	MethodStartMeasurementUpdates = "startMeasurementUpdates"
	MethodStopMeasurementUpdates  = "stopMeasurementUpdates"
	MethodCheckPermissions        = "checkPermissions"
	MethodRequestPermissions      = "requestPermissions"
	MethodAddListener             = "addListener"
	MethodRemoveAllListeners      = "removeAllListeners"
)

// Error codes carried in CallError.Code.
const (
	CodeUnavailable      = "UNAVAILABLE"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidEvent     = "INVALID_EVENT"
	CodeUnimplemented    = "UNIMPLEMENTED"
	CodeInternal         = "INTERNAL"
)

// ErrTimeout is returned when no reply arrives in time.
var ErrTimeout = errors.New("bridge: call timed out")

// Topics derived from one prefix.
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics { return Topics{prefix: prefix} }

func (t Topics) Call() string                 { return t.prefix + "/call" }
func (t Topics) Reply(clientID string) string { return t.prefix + "/reply/" + clientID }
func (t Topics) Event(name string) string     { return t.prefix + "/event/" + name }

// Cleared carries a notice each time the producer's listeners are removed.
func (t Topics) Cleared() string { return t.prefix + "/control/listeners-cleared" }

// Call is one remote operation.
type Call struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	ReplyTo   string `json:"replyTo,omitempty"`
	EventName string `json:"eventName,omitempty"`
}

// Reply answers the Call with the same ID. At most one payload field is set.
type Reply struct {
	ID           string                          `json:"id"`
	Measurement  *measurement.Measurement        `json:"measurement,omitempty"`
	Availability *measurement.AvailabilityResult `json:"availability,omitempty"`
	Permissions  *measurement.PermissionStatus   `json:"permissions,omitempty"`
	Error        *CallError                      `json:"error,omitempty"`
}

// CallError is a failure as seen on the wire.
type CallError struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	State   measurement.PermissionState `json:"state,omitempty"`
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap restores the local sentinel so errors.Is works across the wire.
func (e *CallError) Unwrap() error {
	switch e.Code {
	case CodeUnavailable:
		return sensors.ErrUnavailable
	case CodePermissionDenied:
		return &session.PermissionDeniedError{State: e.State}
	case CodeInvalidEvent:
		return listeners.ErrInvalidEvent
	}
	return nil
}

// toCallError classifies err into a wire error.
func toCallError(err error) *CallError {
	if err == nil {
		return nil
	}
	var denied *session.PermissionDeniedError
	switch {
	case errors.Is(err, sensors.ErrUnavailable):
		return &CallError{Code: CodeUnavailable, Message: err.Error()}
	case errors.As(err, &denied):
		return &CallError{Code: CodePermissionDenied, Message: err.Error(), State: denied.State}
	case errors.Is(err, listeners.ErrInvalidEvent):
		return &CallError{Code: CodeInvalidEvent, Message: err.Error()}
	}
	return &CallError{Code: CodeInternal, Message: err.Error()}
}
