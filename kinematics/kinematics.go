// Package kinematics converts between motor encoder steps and sled/spindle
// positions for a two-chain hanging sled.
//
// Two coordinate systems are used. User space has its origin at the center
// of the workspace with Y increasing upward. Machine space has its origin
// centered between the two chain motors with Y increasing downward.
package kinematics

import (
	"math"

	"github.com/mastercactapus/sled/coord"
)

// Axis describes the encoder scaling of a single motor.
type Axis struct {
	EncoderPPR float64
	GearRatio  float64
	MmPerRev   float64

	// StepsPerMm overrides the derived value when positive.
	StepsPerMm float64
}

// Steps returns the number of encoder steps per millimeter of travel.
func (a Axis) Steps() float64 {
	if a.StepsPerMm > 0 {
		return a.StepsPerMm
	}
	return a.EncoderPPR * a.GearRatio / a.MmPerRev
}

func (a Axis) DistanceToSteps(mm float64) float64 { return mm * a.Steps() }
func (a Axis) StepsToDistance(steps float64) float64 { return steps / a.Steps() }

// Geometry holds the machine frame dimensions.
type Geometry struct {
	MotorsDistanceMm    float64
	MotorsToWorkspaceMm float64
	WorkspaceWidthMm    float64
	WorkspaceHeightMm   float64

	A, B, Z Axis
}

// ToMachine converts a user space position to machine space.
func (g Geometry) ToMachine(p coord.Point) coord.Point {
	p.Y = g.MotorsToWorkspaceMm + g.WorkspaceHeightMm/2 - p.Y
	return p
}

// ToUser converts a machine space position to user space. The transform is
// its own inverse.
func (g Geometry) ToUser(p coord.Point) coord.Point {
	return g.ToMachine(p)
}

// ChainLengths returns the chain lengths from motor A and motor B to a user
// space position.
func (g Geometry) ChainLengths(p coord.Point) (aMm, bMm float64) {
	m := g.ToMachine(p)
	d := g.MotorsDistanceMm / 2
	return math.Hypot(d+m.X, m.Y), math.Hypot(d-m.X, m.Y)
}

// Triangulate solves the MotorA-MotorB-Sled triangle for the user space
// sled position. Z is always zero.
//
// ok is false if the chains cannot meet.
func (g Geometry) Triangulate(aMm, bMm float64) (p coord.Point, ok bool) {
	d := g.MotorsDistanceMm
	if d <= 0 {
		return p, false
	}

	// aa is the distance along the beam from motor A to the foot of the
	// vertical dropped from the sled
	aa := (aMm*aMm - bMm*bMm + d*d) / (2 * d)
	h := aMm*aMm - aa*aa
	if h < 0 {
		return p, false
	}

	p = g.ToUser(coord.Point{X: aa - d/2, Y: math.Sqrt(h)})
	return p, p.IsFinite()
}
