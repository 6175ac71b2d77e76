package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/barometer/internal/barometer"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/sensors"
	"github.com/relabs-tech/barometer/internal/session"
)

func TestFormatMeasurement(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 10, 0, time.Local)
	m := measurement.Measurement{
		Pressure:         1013.254,
		RelativeAltitude: -2.5,
		Timestamp:        now.Add(-2 * time.Second).UnixMilli(),
	}

	got := formatMeasurement(m, now)
	assert.Equal(t, "Pressure: 1013.25 hPa\nRelative altitude: -2.50 m\nTimestamp: 14:30:08 (2 seconds ago)", got)
}

func TestFormatMeasurementWithoutTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 10, 0, time.Local)
	got := formatMeasurement(measurement.Measurement{}, now)
	assert.Contains(t, got, "Pressure: 0.00 hPa")
	assert.Contains(t, got, "Timestamp: 14:30:10")
}

func runConsoleScript(t *testing.T, api session.API, script string) (*console, string) {
	t.Helper()
	var out bytes.Buffer
	c := newConsole(api, &out, quietLogger())
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.run(ctx, strings.NewReader(script))

	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c, out.String()
}

func TestConsoleFlow(t *testing.T) {
	d := sensors.NewMockDriver(101.325, time.Hour, sensors.AuthNotDetermined, sensors.AuthAuthorized)
	b := barometer.New(sensors.NewNativeAdapter(d, sensors.WithLogger(quietLogger())))

	c, out := runConsoleScript(t, b, "read\nstart\nstart\nread\nstatus\nstop\nstop\nbogus\nquit\nread\n")

	assert.Contains(t, out, "Availability: Available")
	assert.Contains(t, out, "Permission: prompt")
	assert.Contains(t, out, "Pressure: 0.00 hPa")
	assert.Contains(t, out, "updates started")
	assert.Contains(t, out, "updates already running")
	assert.Contains(t, out, "single read is disabled while streaming")
	assert.Contains(t, out, "State: active")
	assert.Contains(t, out, "updates stopped")
	assert.Contains(t, out, "updates not running")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Equal(t, 1, strings.Count(out, "Pressure:"), "commands after quit are ignored")

	assert.Equal(t, session.Idle, c.ctrl.State())
	assert.Equal(t, 1, d.Prompts())
}

func TestConsoleDenied(t *testing.T) {
	_, out := runConsoleScript(t, barometer.New(sensors.NewStubAdapter()), "read\nstart\n")

	assert.Contains(t, out, "Availability: Not available")
	assert.Contains(t, out, "Permission: denied")
	assert.Equal(t, 2, strings.Count(out, "barometer permission not granted: denied"))
}

func TestConsoleStopsStreamingOnExit(t *testing.T) {
	d := sensors.NewMockDriver(101.325, time.Hour, sensors.AuthAuthorized, sensors.AuthAuthorized)
	a := sensors.NewNativeAdapter(d, sensors.WithLogger(quietLogger()))

	runConsoleScript(t, barometer.New(a), "start\n")
	assert.False(t, a.UpdatesActive())
}

func TestConsolePrintsEvents(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(barometer.New(sensors.NewStubAdapter()), &out, quietLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	c.now = func() time.Time { return now }

	c.onMeasurement(measurement.Measurement{Pressure: 1000.5, Timestamp: now.UnixMilli()})
	assert.Contains(t, out.String(), "[EVENT]\nPressure: 1000.50 hPa")
}
