package machine

import (
	"math"
)

// jog is an active manual move. Duty ramps up once per tick.
type jog struct {
	// motors maps motor names to their share of the duty, at most 1 in
	// magnitude
	motors map[string]float64
	duty   float64
}

func groupMotors(group string) []string {
	if group == "xy" {
		return []string{"a", "b"}
	}
	return []string{group}
}

// jogLimit returns the largest duty a manual move of group may reach.
func (m *Machine) jogLimit(group string) float64 {
	c := m.cfg.Manual.Jog[group]
	limit := c.Max
	if group == "z" || c.CuttingMax <= 0 {
		return limit
	}

	z := m.model.Motors["z"].State
	if z == nil || !z.Stops[0] {
		limit = math.Min(limit, c.CuttingMax)
	}
	return limit
}

// startJog replaces any manual move sharing a motor with group.
func (m *Machine) startJog(group string, motors map[string]float64) {
	m.stopJog(group)
	j := &jog{
		motors: motors,
		duty:   math.Min(m.cfg.Manual.Jog[group].Min, m.jogLimit(group)),
	}
	m.jogs[group] = j
	m.applyJog(j)
}

// stopJog ends manual moves sharing a motor with group and zeroes their
// duties.
func (m *Machine) stopJog(group string) {
	for _, name := range groupMotors(group) {
		for g, j := range m.jogs {
			if _, ok := j.motors[name]; !ok {
				continue
			}
			for mo := range j.motors {
				m.model.Motors[mo].Duty = 0
			}
			delete(m.jogs, g)
		}
		m.model.Motors[name].Duty = 0
	}
}

func (m *Machine) applyJog(j *jog) {
	for name, share := range j.motors {
		m.model.Motors[name].Duty = clampDuty(j.duty * share)
	}
}

// ramp advances every manual move by one tick.
func (m *Machine) ramp() {
	if m.model.Mode != ModeStandby {
		return
	}
	for group, j := range m.jogs {
		j.duty = math.Min(j.duty+m.cfg.Manual.Jog[group].Step, m.jogLimit(group))
		m.applyJog(j)
	}
}
