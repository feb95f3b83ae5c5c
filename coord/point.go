package coord

import (
	"math"
)

// Point is a position in millimeters.
type Point struct {
	X float64 `json:"xMm"`
	Y float64 `json:"yMm"`
	Z float64 `json:"zMm"`
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	return p
}

func (p Point) Cross(op Point) Point {
	return Point{
		X: p.Y*op.Z - p.Z*op.Y,
		Y: p.Z*op.X - p.X*op.Z,
		Z: p.X*op.Y - p.Y*op.X,
	}
}
func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y + p.Z*op.Z
}

// Lerp returns the point at fraction t of the way from p to target.
//
// t is not clamped; callers pass values in [0,1].
func (p Point) Lerp(target Point, t float64) Point {
	return p.Add(target.Sub(p).Mul(t))
}

// DistanceXY will return the planar distance between p and target.
func (p Point) DistanceXY(target Point) float64 {
	return math.Hypot(target.X-p.X, target.Y-p.Y)
}

// TravelTo returns the length of a move from p to target: the planar
// distance, or the Z distance for a pure Z move.
func (p Point) TravelTo(target Point) float64 {
	d := p.DistanceXY(target)
	if d == 0 {
		return math.Abs(target.Z - p.Z)
	}
	return d
}

// IsFinite reports whether all coordinates are real numbers.
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
