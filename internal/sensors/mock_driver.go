// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"sync"
	"time"
)

// MockDriver generates smoothly changing pressure values for development
// without hardware. It behaves like a platform with an interactive
// permission prompt.
type MockDriver struct {
	baseKPa  float64
	interval time.Duration
	start    time.Time

	mu        sync.Mutex
	available bool
	auth      AuthStatus
	answer    AuthStatus
	prompts   int
}

// NewMockDriver creates a mock source around baseKPa. auth is the initial
// permission status and answer what the simulated user picks when prompted.
func NewMockDriver(baseKPa float64, interval time.Duration, auth, answer AuthStatus) *MockDriver {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &MockDriver{
		baseKPa:   baseKPa,
		interval:  interval,
		start:     time.Now(),
		available: true,
		auth:      auth,
		answer:    answer,
	}
}

func (m *MockDriver) Name() string { return PlatformMock }

func (m *MockDriver) HectopascalScale() float64 { return KilopascalToHectopascal }

func (m *MockDriver) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// SetAvailable simulates the sensor disappearing or coming back.
func (m *MockDriver) SetAvailable(ok bool) {
	m.mu.Lock()
	m.available = ok
	m.mu.Unlock()
}

func (m *MockDriver) AuthorizationStatus() AuthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth
}

// SetAuthorization simulates the user changing settings.
func (m *MockDriver) SetAuthorization(s AuthStatus) {
	m.mu.Lock()
	m.auth = s
	m.mu.Unlock()
}

// RequestAuthorization shows the simulated prompt while the status is
// undetermined or awaiting a rationale; later calls return the stored answer.
func (m *MockDriver) RequestAuthorization(ctx context.Context) (AuthStatus, error) {
	if err := ctx.Err(); err != nil {
		return m.AuthorizationStatus(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auth == AuthNotDetermined || m.auth == AuthRationaleRequired {
		m.prompts++
		m.auth = m.answer
	}
	return m.auth, nil
}

// Prompts returns how many times the prompt was shown.
func (m *MockDriver) Prompts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts
}

// next returns the pressure in kPa at the current time.
func (m *MockDriver) next() float64 {
	elapsed := time.Since(m.start).Seconds()
	// about +-0.5 hPa of drift plus a small fast ripple
	return m.baseKPa + 0.05*math.Sin(elapsed*0.2) + 0.002*math.Sin(elapsed*3)
}

func (m *MockDriver) Subscribe(h Handler) (CancelFunc, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		var alt altimeter
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			kpa := m.next()
			h(Reading{Pressure: kpa, RelativeAltitude: alt.relative(kpa * KilopascalToHectopascal)}, nil)
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, nil
}
