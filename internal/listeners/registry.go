// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package listeners tracks subscriber callbacks for barometer events.
package listeners

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relabs-tech/barometer/internal/measurement"
)

// EventMeasurement is the only event name the registry accepts.
const EventMeasurement = "measurement"

// ErrInvalidEvent is returned for unrecognised event names.
var ErrInvalidEvent = errors.New("invalid event")

// Listener receives one measurement per dispatch.
type Listener func(measurement.Measurement)

type entry struct {
	id uint64
	fn Listener
}

// Registry holds the registered listeners in registration order.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Handle identifies one registered listener.
type Handle struct {
	r  *Registry
	id uint64
}

// AddListener registers fn for eventName and returns its handle.
func (r *Registry) AddListener(eventName string, fn Listener) (*Handle, error) {
	if eventName != EventMeasurement {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEvent, eventName)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil listener for %q", ErrInvalidEvent, eventName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, entry{id: r.nextID, fn: fn})
	return &Handle{r: r, id: r.nextID}, nil
}

// Remove unregisters the listener. Calling it more than once is harmless.
func (h *Handle) Remove() {
	if h == nil || h.r == nil {
		return
	}
	h.r.remove(h.id)
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners drops every registered listener.
func (r *Registry) RemoveAllListeners() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dispatch delivers m synchronously to the listeners registered when the
// dispatch started, in registration order. Listeners added during dispatch
// see the next event, not this one. It returns the number of listeners called.
func (r *Registry) Dispatch(m measurement.Measurement) int {
	r.mu.Lock()
	snapshot := make([]Listener, len(r.entries))
	for i, e := range r.entries {
		snapshot[i] = e.fn
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		fn(m)
	}
	return len(snapshot)
}
