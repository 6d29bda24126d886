package sensor

import (
	"fmt"
	"math"
)

// Shape of the tank footprint.
type Shape string

const (
	ShapeRectangular Shape = "rectangular"
	ShapeCylindrical Shape = "cylindrical"
)

// TankGeometry is the immutable physical description of one tank.
// All dimensions are centimeters. The ultrasonic sensor faces down from
// the top; SensorOffsetCM is the gap between the sensor face and the
// full-tank water line.
type TankGeometry struct {
	Shape          Shape
	HeightCM       float64
	LengthCM       float64
	BreadthCM      float64
	DiameterCM     float64
	SensorOffsetCM float64
}

// Validate checks the geometry is physically usable.
func (g TankGeometry) Validate() error {
	if g.HeightCM <= 0 {
		return fmt.Errorf("tank height must be positive, got %g", g.HeightCM)
	}
	if g.SensorOffsetCM < 0 {
		return fmt.Errorf("sensor offset must not be negative, got %g", g.SensorOffsetCM)
	}
	switch g.Shape {
	case ShapeRectangular:
		if g.LengthCM <= 0 || g.BreadthCM <= 0 {
			return fmt.Errorf("rectangular tank needs positive length and breadth, got %gx%g", g.LengthCM, g.BreadthCM)
		}
	case ShapeCylindrical:
		if g.DiameterCM <= 0 {
			return fmt.Errorf("cylindrical tank needs positive diameter, got %g", g.DiameterCM)
		}
	default:
		return fmt.Errorf("unknown tank shape %q", g.Shape)
	}
	return nil
}

// footprintCM2 returns the horizontal cross-section area in cm².
func (g TankGeometry) footprintCM2() float64 {
	if g.Shape == ShapeCylindrical {
		r := g.DiameterCM / 2
		return math.Pi * r * r
	}
	return g.LengthCM * g.BreadthCM
}

// CapacityLiters returns the full-tank volume.
func (g TankGeometry) CapacityLiters() float64 {
	return g.footprintCM2() * g.HeightCM / 1000
}

// PercentFromDistance converts a sensor-to-surface distance into a fill
// percentage, clamped to [0,100].
func (g TankGeometry) PercentFromDistance(distanceCM float64) float64 {
	waterHeight := g.HeightCM - (distanceCM - g.SensorOffsetCM)
	pct := waterHeight / g.HeightCM * 100
	return clampPercent(pct)
}

// VolumeLitersAt returns the water volume at the given fill percentage.
func (g TankGeometry) VolumeLitersAt(percent float64) float64 {
	waterHeight := clampPercent(percent) / 100 * g.HeightCM
	return waterHeight * g.footprintCM2() / 1000
}

// DistanceInRange reports whether a raw distance is physically plausible
// for this tank, given an extra margin below the empty line.
func (g TankGeometry) DistanceInRange(distanceCM, marginCM float64) bool {
	return distanceCM >= g.SensorOffsetCM && distanceCM <= g.SensorOffsetCM+g.HeightCM+marginCM
}

func clampPercent(pct float64) float64 {
	if math.IsNaN(pct) {
		return 0
	}
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
