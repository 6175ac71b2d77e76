package sensors

import "math"

// Standard atmosphere constants for the hypsometric approximation.
const (
	seaLevelHPa      = 1013.25
	altitudeScaleM   = 44330.0
	altitudeExponent = 0.190284
)

// pressureAltitude converts a pressure in hPa to altitude in the standard atmosphere.
func pressureAltitude(hpa float64) float64 {
	if hpa <= 0 {
		return 0
	}
	return altitudeScaleM * (1 - math.Pow(hpa/seaLevelHPa, altitudeExponent))
}

// altimeter tracks altitude relative to the first pressure it sees.
type altimeter struct {
	ref    float64
	hasRef bool
}

// relative returns meters above (or below) the reference sample.
func (a *altimeter) relative(hpa float64) float64 {
	if hpa <= 0 {
		return 0
	}
	alt := pressureAltitude(hpa)
	if !a.hasRef {
		a.ref = alt
		a.hasRef = true
	}
	return alt - a.ref
}
