package machine

import (
	"math"

	"github.com/mastercactapus/sled/coord"
	"github.com/mastercactapus/sled/kinematics"
	"github.com/pkg/errors"
)

// ErrPositionUnknown is returned when an operation needs a sled position
// that has not been calibrated or cannot be derived.
var ErrPositionUnknown = errors.New("sled position unknown")

// ManualMoveStart starts jogging a motor group. The duty starts at the
// group's configured minimum and ramps up every tick until
// ManualMoveStop.
//
// Groups a, b and z take a single direction. Group xy takes an X and a Y
// direction and drives both chains so the sled moves along that vector.
func (m *Machine) ManualMoveStart(group string, dirs ...float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.model.Mode != ModeStandby {
		return ErrNotStandby
	}

	switch group {
	case "a", "b", "z":
		if len(dirs) != 1 {
			return errors.Errorf("manual move %s: expected 1 direction, got %d", group, len(dirs))
		}
		m.startJog(group, map[string]float64{group: math.Max(-1, math.Min(1, dirs[0]))})
		return nil
	case "xy":
	default:
		return errors.Errorf("unknown motor group: %s", group)
	}

	if len(dirs) != 2 {
		return errors.Errorf("manual move xy: expected 2 directions, got %d", len(dirs))
	}
	pos, ok := m.model.SledPosition()
	if !ok {
		return ErrPositionUnknown
	}

	// chain length change for a 1mm step in the requested direction
	a0, b0 := m.geo.ChainLengths(pos)
	a1, b1 := m.geo.ChainLengths(pos.Add(coord.Point{X: dirs[0], Y: dirs[1]}))
	da, db := a1-a0, b1-b0

	scale := math.Max(math.Abs(da), math.Abs(db))
	if scale == 0 || math.IsNaN(scale) {
		m.stopJog(group)
		return nil
	}
	m.startJog(group, map[string]float64{"a": da / scale, "b": db / scale})
	return nil
}

// ManualMoveStop ends a manual move and zeroes the group's duties.
func (m *Machine) ManualMoveStop(group string) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.model.Mode != ModeStandby {
		return ErrNotStandby
	}

	switch group {
	case "a", "b", "z", "xy":
		m.stopJog(group)
	default:
		return errors.Errorf("unknown motor group: %s", group)
	}
	return nil
}

// ManualSwitch sets a relay. The hoover relay follows the spindle and
// cannot be switched directly.
func (m *Machine) ManualSwitch(relay string, on bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	if relay == "hoover" {
		return errors.New("hoover relay is controlled by the spindle")
	}
	r, ok := m.model.Relays[relay]
	if !ok {
		return errors.Errorf("unknown relay: %s", relay)
	}
	r.On = on
	return nil
}

// SetCalibration calibrates from a measured distance.
//
//	top     sled is valueMm below the top workspace edge, centered
//	bottom  sled is valueMm above the bottom workspace edge, centered
//	tool    spindle tip is at Z valueMm
func (m *Machine) SetCalibration(kind string, valueMm float64) error {
	m.mx.Lock()
	h := m.geo.WorkspaceHeightMm
	m.mx.Unlock()

	switch kind {
	case "top":
		return m.CalibrateSled(0, h/2-valueMm)
	case "bottom":
		return m.CalibrateSled(0, -h/2+valueMm)
	case "tool":
		return m.SetSpindleReference(valueMm)
	}
	return errors.Errorf("unknown calibration: %s", kind)
}

// CalibrateSled declares the current sled position, replacing the
// reference.
func (m *Machine) CalibrateSled(xMm, yMm float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.model.Mode != ModeStandby {
		return ErrNotStandby
	}

	a := m.model.Motors["a"].State
	b := m.model.Motors["b"].State
	if a == nil || b == nil {
		return errors.New("calibrate sled: chain motor readings unavailable")
	}
	if !finite(&xMm) || !finite(&yMm) {
		return errors.New("calibrate sled: invalid position")
	}

	m.model.Sled.Reference = &kinematics.SledReference{
		XMm:    xMm,
		YMm:    yMm,
		ASteps: a.Steps,
		BSteps: b.Steps,
	}
	m.log.Info("sled calibrated", "xMm", xMm, "yMm", yMm)
	return nil
}

// SetSpindleReference declares the current spindle height.
func (m *Machine) SetSpindleReference(zMm float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.model.Mode != ModeStandby {
		return ErrNotStandby
	}

	z := m.model.Motors["z"].State
	if z == nil {
		return errors.New("calibrate spindle: z motor reading unavailable")
	}
	if !finite(&zMm) {
		return errors.New("calibrate spindle: invalid height")
	}

	m.model.Spindle.Reference = &kinematics.SpindleReference{
		ZMm:    zMm,
		ZSteps: z.Steps,
	}
	m.log.Info("spindle calibrated", "zMm", zMm)
	return nil
}

// ResetUserOrigin moves the user origin to the current sled position, or
// back to the workspace center if it is already there.
func (m *Machine) ResetUserOrigin() error {
	m.mx.Lock()
	defer m.mx.Unlock()

	pos, ok := m.model.SledPosition()
	if !ok {
		return ErrPositionUnknown
	}
	pos.Z = 0
	if m.model.UserOrigin == pos {
		m.model.UserOrigin = coord.Point{}
		return nil
	}
	m.model.UserOrigin = pos
	return nil
}

// EmergencyStop zeroes every duty, drops the target, interrupts any
// running job and forces STANDBY.
func (m *Machine) EmergencyStop() {
	m.mx.Lock()
	defer m.mx.Unlock()

	for _, mo := range m.model.Motors {
		mo.Duty = 0
	}
	m.jogs = make(map[string]*jog)
	m.model.Target = nil
	if m.job {
		m.model.JobInterrupt = true
	}
	m.model.Mode = ModeStandby
	m.log.Warn("emergency stop")
}
