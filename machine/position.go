package machine

import (
	"math"

	"github.com/mastercactapus/sled/kinematics"
)

// derive recomputes the sled and spindle positions from the motor readings,
// seeding missing references from the checkpoint, and updates the
// checkpoint with the result.
func (m *Machine) derive() {
	cp := m.checkpoint.LastPosition()

	a := m.model.Motors["a"].State
	b := m.model.Motors["b"].State
	sled := &m.model.Sled
	if a != nil && b != nil && sled.Reference == nil && finite(cp.XMm) && finite(cp.YMm) {
		sled.Reference = &kinematics.SledReference{
			XMm:    *cp.XMm,
			YMm:    *cp.YMm,
			ASteps: a.Steps,
			BSteps: b.Steps,
		}
		m.log.Info("sled reference restored", "xMm", *cp.XMm, "yMm", *cp.YMm)
	}

	sled.XMm, sled.YMm = nil, nil
	cp.XMm, cp.YMm = nil, nil
	if a != nil && b != nil && sled.Reference != nil {
		p, ok := m.geo.SledPosition(*sled.Reference, a.Steps, b.Steps)
		if ok {
			sled.XMm, sled.YMm = ptr(p.X), ptr(p.Y)
			cp.XMm, cp.YMm = ptr(p.X), ptr(p.Y)
		}
	}

	z := m.model.Motors["z"].State
	spindle := &m.model.Spindle
	if z != nil && spindle.Reference == nil && finite(cp.ZMm) {
		spindle.Reference = &kinematics.SpindleReference{
			ZMm:    *cp.ZMm,
			ZSteps: z.Steps,
		}
		m.log.Info("spindle reference restored", "zMm", *cp.ZMm)
	}

	spindle.ZMm = nil
	cp.ZMm = nil
	if z != nil && spindle.Reference != nil {
		v := m.geo.SpindleZ(*spindle.Reference, z.Steps)
		if finite(&v) {
			spindle.ZMm = ptr(v)
			cp.ZMm = ptr(v)
		}
	}

	m.checkpoint.SetLastPosition(cp)
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
