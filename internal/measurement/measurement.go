// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package measurement

import "time"

// Measurement is a single barometer sample in the shared units.
type Measurement struct {
	Pressure         float64 `json:"pressure"`         // hPa
	RelativeAltitude float64 `json:"relativeAltitude"` // m since stream start, 0 if unsupported
	Timestamp        int64   `json:"timestamp"`        // ms since Unix epoch
}

// Zero returns the default measurement served before any sample arrives.
func Zero(now time.Time) Measurement {
	return Measurement{Timestamp: now.UnixMilli()}
}

// Time returns the sample timestamp as a time.Time.
func (m Measurement) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// AvailabilityResult reports whether the platform exposes a barometer.
type AvailabilityResult struct {
	IsAvailable bool `json:"isAvailable"`
}
