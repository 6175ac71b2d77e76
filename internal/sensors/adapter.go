// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// ErrUnavailable is returned when the platform has no barometer.
var ErrUnavailable = errors.New("barometer not available")

// Adapter translates one platform's sensing primitives into the shared
// measurement and permission vocabulary.
type Adapter interface {
	Platform() string

	IsAvailable(ctx context.Context) measurement.AvailabilityResult
	CheckPermissions(ctx context.Context) measurement.PermissionStatus
	RequestPermissions(ctx context.Context) measurement.PermissionStatus

	GetMeasurement(ctx context.Context) (measurement.Measurement, error)
	StartMeasurementUpdates(ctx context.Context) error
	StopMeasurementUpdates(ctx context.Context)

	AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error)
	RemoveAllListeners()
}
