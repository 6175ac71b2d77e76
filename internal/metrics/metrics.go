// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/barometer/internal/measurement"
)

// Collector exports the barometer session as Prometheus metrics.
type Collector struct {
	measurements      prometheus.Counter
	pressure          prometheus.Gauge
	relativeAltitude  prometheus.Gauge
	lastTimestamp     prometheus.Gauge
	updatesActive     prometheus.Gauge
	permissionDenials *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg. A nil reg
// uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barometer_measurements_total",
			Help: "Measurements received from the sensor stream.",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barometer_pressure_hpa",
			Help: "Latest pressure in hectopascals.",
		}),
		relativeAltitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barometer_relative_altitude_meters",
			Help: "Latest altitude relative to the start of the stream.",
		}),
		lastTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barometer_last_measurement_timestamp_ms",
			Help: "Timestamp of the latest measurement, ms since epoch.",
		}),
		updatesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barometer_updates_active",
			Help: "1 while measurement updates are streaming.",
		}),
		permissionDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barometer_permission_denials_total",
				Help: "Permission requests that did not return granted.",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(
		c.measurements,
		c.pressure,
		c.relativeAltitude,
		c.lastTimestamp,
		c.updatesActive,
		c.permissionDenials,
	)
	return c
}

// Observe records one streamed measurement. It has the listener signature.
func (c *Collector) Observe(m measurement.Measurement) {
	c.measurements.Inc()
	c.pressure.Set(m.Pressure)
	c.relativeAltitude.Set(m.RelativeAltitude)
	c.lastTimestamp.Set(float64(m.Timestamp))
}

func (c *Collector) SetActive(active bool) {
	if active {
		c.updatesActive.Set(1)
		return
	}
	c.updatesActive.Set(0)
}

// PermissionDenied counts a refused request by the returned state.
func (c *Collector) PermissionDenied(state measurement.PermissionState) {
	c.permissionDenials.With(prometheus.Labels{"state": string(state)}).Inc()
}
