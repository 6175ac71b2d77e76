// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// NativeAdapter backs the shared contract with a hardware Driver. It owns the
// session: whether updates are active, the latest measurement and the
// cancellation token of the one native subscription.
type NativeAdapter struct {
	driver   Driver
	registry *listeners.Registry
	logger   *log.Logger
	now      func() time.Time

	mu            sync.Mutex
	updatesActive bool
	latest        measurement.Measurement
	cancel        CancelFunc
	generation    uint64

	// deliverMu serialises cache updates and dispatch so listeners observe
	// samples in the order they were cached.
	deliverMu sync.Mutex
}

// NativeOption customises a NativeAdapter.
type NativeOption func(*NativeAdapter)

// WithLogger sets the logger used for callback errors.
func WithLogger(l *log.Logger) NativeOption {
	return func(a *NativeAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) NativeOption {
	return func(a *NativeAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRegistry shares an existing listener registry.
func WithRegistry(r *listeners.Registry) NativeOption {
	return func(a *NativeAdapter) {
		if r != nil {
			a.registry = r
		}
	}
}

// NewNativeAdapter creates the session for driver. The cached measurement is
// seeded with zero values stamped at construction time.
func NewNativeAdapter(driver Driver, opts ...NativeOption) *NativeAdapter {
	a := &NativeAdapter{
		driver:   driver,
		registry: listeners.NewRegistry(),
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.latest = measurement.Zero(a.now())
	return a
}

// Platform returns the driver name.
func (a *NativeAdapter) Platform() string {
	return a.driver.Name()
}

// available never panics; a failing capability probe counts as no hardware.
func (a *NativeAdapter) available() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Printf("barometer: %s availability check panicked: %v", a.driver.Name(), r)
			ok = false
		}
	}()
	return a.driver.Available()
}

// IsAvailable queries the hardware on every call.
func (a *NativeAdapter) IsAvailable(ctx context.Context) measurement.AvailabilityResult {
	return measurement.AvailabilityResult{IsAvailable: a.available()}
}

// CheckPermissions reads the current authorization without prompting.
func (a *NativeAdapter) CheckPermissions(ctx context.Context) measurement.PermissionStatus {
	return measurement.PermissionStatus{Barometer: a.permissionState()}
}

func (a *NativeAdapter) permissionState() (state measurement.PermissionState) {
	if !a.available() {
		return measurement.PermissionDenied
	}
	auth, ok := a.driver.(Authorizer)
	if !ok {
		return measurement.PermissionGranted
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Printf("barometer: %s authorization status panicked: %v", a.driver.Name(), r)
			state = measurement.PermissionPrompt
		}
	}()
	return PermissionFromAuth(auth.AuthorizationStatus())
}

// RequestPermissions prompts only while the status is prompt or
// prompt-with-rationale, so repeated calls after a grant never prompt again.
func (a *NativeAdapter) RequestPermissions(ctx context.Context) measurement.PermissionStatus {
	current := a.permissionState()
	auth, ok := a.driver.(Authorizer)
	if !ok || (current != measurement.PermissionPrompt && current != measurement.PermissionPromptWithRationale) {
		return measurement.PermissionStatus{Barometer: current}
	}

	status, err := a.requestAuthorization(ctx, auth)
	if err != nil {
		a.logger.Printf("barometer: %s permission request failed: %v", a.driver.Name(), err)
		return measurement.PermissionStatus{Barometer: a.permissionState()}
	}
	return measurement.PermissionStatus{Barometer: PermissionFromAuth(status)}
}

func (a *NativeAdapter) requestAuthorization(ctx context.Context, auth Authorizer) (status AuthStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("authorization prompt panicked: %v", r)
		}
	}()
	return auth.RequestAuthorization(ctx)
}

// GetMeasurement returns the most recent cached sample. It fails whenever the
// hardware is missing at call time, whatever the cache holds.
func (a *NativeAdapter) GetMeasurement(ctx context.Context) (measurement.Measurement, error) {
	if !a.available() {
		return measurement.Measurement{}, ErrUnavailable
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest, nil
}

// StartMeasurementUpdates subscribes to the driver unless a subscription is
// already active.
func (a *NativeAdapter) StartMeasurementUpdates(ctx context.Context) error {
	if !a.available() {
		return ErrUnavailable
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updatesActive {
		return nil
	}

	a.generation++
	gen := a.generation
	cancel, err := a.driver.Subscribe(func(r Reading, err error) {
		a.handle(gen, r, err)
	})
	if err != nil {
		return fmt.Errorf("start barometer updates: %w", err)
	}

	a.cancel = cancel
	a.updatesActive = true
	a.logger.Printf("barometer: %s updates started", a.driver.Name())
	return nil
}

// StopMeasurementUpdates cancels the native subscription if there is one.
// A callback that is already running may still deliver one last sample.
func (a *NativeAdapter) StopMeasurementUpdates(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.updatesActive {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = nil
	a.updatesActive = false
	a.generation++
	a.logger.Printf("barometer: %s updates stopped", a.driver.Name())
}

// UpdatesActive reports whether a native subscription is live.
func (a *NativeAdapter) UpdatesActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updatesActive
}

// AddListener registers fn for eventName on the adapter's registry.
func (a *NativeAdapter) AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error) {
	return a.registry.AddListener(eventName, fn)
}

// RemoveAllListeners clears the adapter's registry.
func (a *NativeAdapter) RemoveAllListeners() {
	a.registry.RemoveAllListeners()
}

// Close stops updates and releases the driver's device, if it holds one.
func (a *NativeAdapter) Close() error {
	a.StopMeasurementUpdates(context.Background())
	if c, ok := a.driver.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// handle runs on the driver's goroutine for each callback.
func (a *NativeAdapter) handle(gen uint64, r Reading, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Printf("barometer: %s measurement callback panicked: %v", a.driver.Name(), rec)
		}
	}()

	if err != nil {
		a.logger.Printf("barometer: %s error: %v", a.driver.Name(), err)
		return
	}

	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	a.mu.Lock()
	if !a.updatesActive || gen != a.generation {
		a.mu.Unlock()
		return
	}
	m := measurement.Measurement{
		Pressure:         r.Pressure * a.driver.HectopascalScale(),
		RelativeAltitude: r.RelativeAltitude,
		Timestamp:        a.now().UnixMilli(),
	}
	a.latest = m
	a.mu.Unlock()

	a.registry.Dispatch(m)
}
