// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// StubAdapter is used where no pressure sensor can exist. Reads and streams
// fail, permissions are always denied and stop is a no-op. Listeners can
// still be registered; they are never called.
type StubAdapter struct {
	registry *listeners.Registry
}

// NewStubAdapter returns the unavailable adapter.
func NewStubAdapter() *StubAdapter {
	return &StubAdapter{registry: listeners.NewRegistry()}
}

func (s *StubAdapter) Platform() string { return PlatformStub }

func (s *StubAdapter) IsAvailable(ctx context.Context) measurement.AvailabilityResult {
	return measurement.AvailabilityResult{IsAvailable: false}
}

func (s *StubAdapter) CheckPermissions(ctx context.Context) measurement.PermissionStatus {
	return measurement.PermissionStatus{Barometer: measurement.PermissionDenied}
}

func (s *StubAdapter) RequestPermissions(ctx context.Context) measurement.PermissionStatus {
	return measurement.PermissionStatus{Barometer: measurement.PermissionDenied}
}

func (s *StubAdapter) GetMeasurement(ctx context.Context) (measurement.Measurement, error) {
	return measurement.Measurement{}, ErrUnavailable
}

func (s *StubAdapter) StartMeasurementUpdates(ctx context.Context) error {
	return ErrUnavailable
}

func (s *StubAdapter) StopMeasurementUpdates(ctx context.Context) {}

func (s *StubAdapter) AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error) {
	return s.registry.AddListener(eventName, fn)
}

func (s *StubAdapter) RemoveAllListeners() {
	s.registry.RemoveAllListeners()
}
