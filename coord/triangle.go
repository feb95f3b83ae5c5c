package coord

import (
	"math"
)

const (
	// Epsilon is the max error in millimeters when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

// Triangle is a planar patch of a probed surface.
type Triangle struct{ A, B, C Point }

// Contains returns true if the XY projection of the triangle
// covers p. Z is ignored.
func (t Triangle) Contains(p Point) bool {
	if !t.boundsContain(p) {
		return false
	}
	if t.sidesContain(p) {
		return true
	}

	// points on an edge may fail the side test due to rounding
	return segmentDistanceSq(t.A, t.B, p) <= epsilonSq ||
		segmentDistanceSq(t.B, t.C, p) <= epsilonSq ||
		segmentDistanceSq(t.C, t.A, p) <= epsilonSq
}

// Z will give the height of the triangle's plane above (x,y).
func (t Triangle) Z(x, y float64) float64 {
	n := t.C.Sub(t.A).Cross(t.B.Sub(t.A))
	d := n.Dot(t.C)

	return (d - n.X*x - n.Y*y) / n.Z
}

// adapted from https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html

func side(a, b, p Point) float64 {
	return (b.Y-a.Y)*(p.X-a.X) + (a.X-b.X)*(p.Y-a.Y)
}

// sidesContain accepts either winding order.
func (t Triangle) sidesContain(p Point) bool {
	s1, s2, s3 := side(t.A, t.B, p), side(t.B, t.C, p), side(t.C, t.A, p)
	return (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0)
}

func (t Triangle) boundsContain(p Point) bool {
	minX := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	maxX := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	minY := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	maxY := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon

	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

func segmentDistanceSq(a, b, p Point) float64 {
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	dot := ((p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)) / lenSq
	switch {
	case dot < 0:
		return (p.X-a.X)*(p.X-a.X) + (p.Y-a.Y)*(p.Y-a.Y)
	case dot <= 1:
		apSq := (a.X-p.X)*(a.X-p.X) + (a.Y-p.Y)*(a.Y-p.Y)
		return apSq - dot*dot*lenSq
	}
	return (p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)
}
