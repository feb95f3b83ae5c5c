package kinematics

import (
	"github.com/mastercactapus/sled/coord"
)

// SledReference pairs a known sled position with the chain motor step
// counts at the moment it was recorded.
type SledReference struct {
	XMm    float64 `json:"xMm"`
	YMm    float64 `json:"yMm"`
	ASteps int64   `json:"aSteps"`
	BSteps int64   `json:"bSteps"`
}

// SpindleReference pairs a known spindle height with the Z motor step count.
type SpindleReference struct {
	ZMm    float64 `json:"zMm"`
	ZSteps int64   `json:"zSteps"`
}

// SledChains returns absolute chain lengths for the given step counts using
// ref as the calibrated origin.
func (g Geometry) SledChains(ref SledReference, aSteps, bSteps int64) (aMm, bMm float64) {
	refA, refB := g.ChainLengths(coord.Point{X: ref.XMm, Y: ref.YMm})

	// step counts the encoders would show with the sled at the motors
	originA := g.A.DistanceToSteps(refA) - float64(ref.ASteps)
	originB := g.B.DistanceToSteps(refB) - float64(ref.BSteps)

	return g.A.StepsToDistance(originA + float64(aSteps)),
		g.B.StepsToDistance(originB + float64(bSteps))
}

// SledPosition derives the user space sled position from step counts.
func (g Geometry) SledPosition(ref SledReference, aSteps, bSteps int64) (coord.Point, bool) {
	return g.Triangulate(g.SledChains(ref, aSteps, bSteps))
}

// SpindleZ derives the spindle height from the Z step count.
func (g Geometry) SpindleZ(ref SpindleReference, zSteps int64) float64 {
	return ref.ZMm + g.Z.StepsToDistance(float64(zSteps-ref.ZSteps))
}
