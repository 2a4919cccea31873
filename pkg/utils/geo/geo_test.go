package geo

import (
	"math"
	"testing"
)

func TestAngleAround(t *testing.T) {
	center := Point{X: 1, Z: 1}
	cases := []struct {
		p    Point
		want float64
	}{
		{Point{X: 2, Z: 1}, 0},
		{Point{X: 1, Z: 2}, 90},
		{Point{X: 0, Z: 1}, 180},
		{Point{X: 1, Z: 0}, -90},
	}
	for _, tc := range cases {
		got := AngleAround(center, tc.p)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("AngleAround(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestSeatPositionIsClockwise(t *testing.T) {
	for i := 0; i < 4; i++ {
		p := SeatPosition(i, 4, 2)
		if d := Distance(Point{}, p); math.Abs(d-2) > 1e-9 {
			t.Fatalf("seat %d off the circle: %v", i, d)
		}
		next := SeatPosition(i+1, 4, 2)
		step := math.Mod(AngleAround(Point{}, next)-AngleAround(Point{}, p)+360, 360)
		if math.Abs(step-270) > 1e-6 {
			t.Fatalf("seat %d -> %d step %v, want a clockwise quarter turn", i, i+1, step)
		}
	}
}
