// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session applies the access policy on top of the barometer facade:
// permission is requested before every read or stream start, and streaming
// moves between Idle and Active with exactly one event listener.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// API is the part of the facade the controller drives.
type API interface {
	IsAvailable(ctx context.Context) measurement.AvailabilityResult
	CheckPermissions(ctx context.Context) measurement.PermissionStatus
	RequestPermissions(ctx context.Context) measurement.PermissionStatus
	GetMeasurement(ctx context.Context) (measurement.Measurement, error)
	StartMeasurementUpdates(ctx context.Context) error
	StopMeasurementUpdates(ctx context.Context)
	AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error)
}

// State of the streaming state machine.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// MarshalText renders the state as "idle" or "active".
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "idle" or "active".
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "active":
		*s = Active
	default:
		return fmt.Errorf("session: unknown state %q", text)
	}
	return nil
}

// ErrPermissionDenied matches every *PermissionDeniedError.
var ErrPermissionDenied = errors.New("barometer permission denied")

// PermissionDeniedError carries the state returned by the permission request.
type PermissionDeniedError struct {
	State measurement.PermissionState
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("barometer permission not granted: %s", e.State)
}

func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Status is a snapshot for display. Building it never prompts.
type Status struct {
	Available  bool                        `json:"available"`
	Permission measurement.PermissionState `json:"permission"`
	State      State                       `json:"state"`
}

// Controller owns the streaming state and the one listener it registers.
type Controller struct {
	api           API
	onMeasurement listeners.Listener
	onDenied      func(measurement.PermissionState)
	logger        *log.Logger

	mu     sync.Mutex
	state  State
	handle *listeners.Handle
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDeniedHook is called with the state of every refused permission request.
func WithDeniedHook(fn func(measurement.PermissionState)) Option {
	return func(c *Controller) { c.onDenied = fn }
}

// New creates an Idle controller. onMeasurement receives streamed samples
// while Active; nil discards them.
func New(api API, onMeasurement listeners.Listener, opts ...Option) *Controller {
	if onMeasurement == nil {
		onMeasurement = func(measurement.Measurement) {}
	}
	c := &Controller{
		api:           api,
		onMeasurement: onMeasurement,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsurePermission requests permission and fails unless it is granted.
func (c *Controller) EnsurePermission(ctx context.Context) error {
	state := c.api.RequestPermissions(ctx).Barometer
	if state == measurement.PermissionGranted {
		return nil
	}
	if c.onDenied != nil {
		c.onDenied(state)
	}
	return &PermissionDeniedError{State: state}
}

// ReadOnce returns the latest measurement. The streaming state is unchanged.
func (c *Controller) ReadOnce(ctx context.Context) (measurement.Measurement, error) {
	if err := c.EnsurePermission(ctx); err != nil {
		return measurement.Measurement{}, err
	}
	return c.api.GetMeasurement(ctx)
}

// Start moves Idle to Active. Calling it while Active re-issues the
// idempotent adapter start without registering a second listener. When the
// adapter refuses to start from Idle the listener is released and the state
// stays Idle.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.EnsurePermission(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		h, err := c.api.AddListener(listeners.EventMeasurement, c.onMeasurement)
		if err != nil {
			return fmt.Errorf("session: add listener: %w", err)
		}
		c.handle = h
	}

	if err := c.api.StartMeasurementUpdates(ctx); err != nil {
		if c.state == Idle && c.handle != nil {
			c.handle.Remove()
			c.handle = nil
		}
		return err
	}
	if c.state == Idle {
		c.logger.Println("session: measurement updates active")
	}
	c.state = Active
	return nil
}

// Stop moves Active to Idle and releases the listener. Idle is a no-op.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Idle {
		return
	}
	c.api.StopMeasurementUpdates(ctx)
	if c.handle != nil {
		c.handle.Remove()
		c.handle = nil
	}
	c.state = Idle
	c.logger.Println("session: measurement updates stopped")
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanStart reports whether the start trigger is enabled.
func (c *Controller) CanStart() bool { return c.State() == Idle }

// CanStop reports whether the stop trigger is enabled.
func (c *Controller) CanStop() bool { return c.State() == Active }

// CanReadOnce reports whether the single read trigger is enabled.
func (c *Controller) CanReadOnce() bool { return c.State() == Idle }

// Status refreshes availability and permission without prompting.
func (c *Controller) Status(ctx context.Context) Status {
	return Status{
		Available:  c.api.IsAvailable(ctx).IsAvailable,
		Permission: c.api.CheckPermissions(ctx).Barometer,
		State:      c.State(),
	}
}
