// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"

	"github.com/relabs-tech/barometer/internal/measurement"
)

// Reading is one raw sample as the native source reports it.
type Reading struct {
	Pressure         float64 // native unit, see Driver.HectopascalScale
	RelativeAltitude float64 // meters since the subscription started, 0 if unsupported
}

// Handler is invoked by a driver for every sample or sampling error.
type Handler func(Reading, error)

// CancelFunc stops a subscription. It must not wait for an in-flight
// handler invocation to return.
type CancelFunc func()

// Driver is a native pressure source with its own callback cadence.
type Driver interface {
	Name() string
	// Available reports the current hardware capability.
	Available() bool
	// HectopascalScale converts Reading.Pressure to hPa.
	HectopascalScale() float64
	// Subscribe starts delivering samples to h from another goroutine.
	// It never calls h before returning.
	Subscribe(h Handler) (CancelFunc, error)
}

// AuthStatus is a driver's native authorization status.
type AuthStatus int

const (
	AuthNotDetermined AuthStatus = iota
	AuthRestricted
	AuthDenied
	AuthAuthorized
	AuthLimited
	AuthRationaleRequired
)

func (s AuthStatus) String() string {
	switch s {
	case AuthNotDetermined:
		return "notDetermined"
	case AuthRestricted:
		return "restricted"
	case AuthDenied:
		return "denied"
	case AuthAuthorized:
		return "authorized"
	case AuthLimited:
		return "limited"
	case AuthRationaleRequired:
		return "rationaleRequired"
	}
	return "unknown"
}

// Authorizer is implemented by drivers that gate access behind a permission.
type Authorizer interface {
	// AuthorizationStatus reads the current status without prompting.
	AuthorizationStatus() AuthStatus
	// RequestAuthorization prompts the user. It may block until they answer.
	RequestAuthorization(ctx context.Context) (AuthStatus, error)
}

// PermissionFromAuth maps a native status into the shared vocabulary.
// Unknown statuses map to prompt, restrictive ones to denied.
func PermissionFromAuth(s AuthStatus) measurement.PermissionState {
	switch s {
	case AuthAuthorized:
		return measurement.PermissionGranted
	case AuthDenied, AuthRestricted:
		return measurement.PermissionDenied
	case AuthLimited:
		return measurement.PermissionLimited
	case AuthRationaleRequired:
		return measurement.PermissionPromptWithRationale
	default:
		return measurement.PermissionPrompt
	}
}

// AuthFromPermission is the inverse mapping, used to configure drivers.
func AuthFromPermission(p measurement.PermissionState) AuthStatus {
	switch p {
	case measurement.PermissionGranted:
		return AuthAuthorized
	case measurement.PermissionDenied:
		return AuthDenied
	case measurement.PermissionLimited:
		return AuthLimited
	case measurement.PermissionPromptWithRationale:
		return AuthRationaleRequired
	default:
		return AuthNotDetermined
	}
}
