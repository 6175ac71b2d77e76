// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package barometer is the single entry point to the pressure sensor. One
// Barometer is created at start-up and shared by every consumer.
package barometer

import (
	"context"
	"io"
	"log"

	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/sensors"
)

// Barometer forwards every call to the platform adapter chosen at start-up.
// It does not enforce permissions; that is the session controller's job.
type Barometer struct {
	adapter sensors.Adapter
}

// New wraps an already selected adapter.
func New(adapter sensors.Adapter) *Barometer {
	return &Barometer{adapter: adapter}
}

// Open selects the adapter from cfg.
func Open(cfg *config.Config, logger *log.Logger) (*Barometer, error) {
	a, err := sensors.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

// Platform names the backing adapter.
func (b *Barometer) Platform() string { return b.adapter.Platform() }

func (b *Barometer) GetMeasurement(ctx context.Context) (measurement.Measurement, error) {
	return b.adapter.GetMeasurement(ctx)
}

func (b *Barometer) IsAvailable(ctx context.Context) measurement.AvailabilityResult {
	return b.adapter.IsAvailable(ctx)
}

func (b *Barometer) StartMeasurementUpdates(ctx context.Context) error {
	return b.adapter.StartMeasurementUpdates(ctx)
}

func (b *Barometer) StopMeasurementUpdates(ctx context.Context) {
	b.adapter.StopMeasurementUpdates(ctx)
}

func (b *Barometer) CheckPermissions(ctx context.Context) measurement.PermissionStatus {
	return b.adapter.CheckPermissions(ctx)
}

func (b *Barometer) RequestPermissions(ctx context.Context) measurement.PermissionStatus {
	return b.adapter.RequestPermissions(ctx)
}

// AddListener registers fn for eventName. Only "measurement" is accepted.
func (b *Barometer) AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error) {
	return b.adapter.AddListener(eventName, fn)
}

func (b *Barometer) RemoveAllListeners() {
	b.adapter.RemoveAllListeners()
}

// Shutdown stops updates, drops every listener and releases the hardware
// if the adapter holds any.
func (b *Barometer) Shutdown(ctx context.Context) {
	b.adapter.StopMeasurementUpdates(ctx)
	b.adapter.RemoveAllListeners()
	if c, ok := b.adapter.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("barometer: close %s: %v", b.adapter.Platform(), err)
		}
	}
}
