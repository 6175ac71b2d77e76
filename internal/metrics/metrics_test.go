package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/barometer/internal/measurement"
)

func TestObserve(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.Observe(measurement.Measurement{Pressure: 1013.25, RelativeAltitude: 1.5, Timestamp: 1700000000000})
	c.Observe(measurement.Measurement{Pressure: 1012.75, RelativeAltitude: 5.6, Timestamp: 1700000000200})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.measurements))
	assert.Equal(t, 1012.75, testutil.ToFloat64(c.pressure))
	assert.Equal(t, 5.6, testutil.ToFloat64(c.relativeAltitude))
	assert.Equal(t, 1700000000200.0, testutil.ToFloat64(c.lastTimestamp))
}

func TestActiveAndDenials(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SetActive(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updatesActive))
	c.SetActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.updatesActive))

	c.PermissionDenied(measurement.PermissionDenied)
	c.PermissionDenied(measurement.PermissionDenied)
	c.PermissionDenied(measurement.PermissionPrompt)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.permissionDenials.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.permissionDenials.WithLabelValues("prompt")))
}

func TestRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.PermissionDenied(measurement.PermissionLimited)

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"barometer_measurements_total",
		"barometer_pressure_hpa",
		"barometer_relative_altitude_meters",
		"barometer_last_measurement_timestamp_ms",
		"barometer_updates_active",
		"barometer_permission_denials_total",
	}, names)
}
