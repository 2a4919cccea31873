// Package geo holds the small amount of table geometry used to seat actors.
package geo

import "math"

// Point is a position on the table plane (X/Z, top-down).
type Point struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// AngleAround returns the angle of p around center in degrees, in (-180, 180].
func AngleAround(center, p Point) float64 {
	return math.Atan2(p.Z-center.Z, p.X-center.X) * 180 / math.Pi
}

// SeatPosition spaces count seats evenly on a circle of the given radius,
// starting at angle 0 and walking clockwise.
func SeatPosition(index, count int, radius float64) Point {
	if count <= 0 {
		return Point{}
	}
	theta := -2 * math.Pi * float64(index%count) / float64(count)
	return Point{
		X: radius * math.Cos(theta),
		Z: radius * math.Sin(theta),
	}
}

func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}
