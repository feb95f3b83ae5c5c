package machine

import (
	"github.com/mastercactapus/sled/coord"
	"github.com/mastercactapus/sled/driver"
	"github.com/mastercactapus/sled/kinematics"
)

type Mode string

const (
	ModeStandby Mode = "STANDBY"
	ModeJob     Mode = "JOB"
)

// Model describes the whole machine at an instant.
//
// Optional values are pointers and are nil when unknown.
type Model struct {
	Mode    Mode              `json:"mode"`
	Sled    Sled              `json:"sled"`
	Spindle Spindle           `json:"spindle"`
	Motors  map[string]*Motor `json:"motors"`
	Relays  map[string]*Relay `json:"relays"`

	// Target is only set while a job is running.
	Target *coord.Point `json:"target,omitempty"`

	Errors       map[string]string `json:"errors"`
	JobInterrupt bool              `json:"jobInterrupt"`

	UserOrigin coord.Point `json:"userOrigin"`
}

type Sled struct {
	XMm       *float64                  `json:"xMm,omitempty"`
	YMm       *float64                  `json:"yMm,omitempty"`
	Reference *kinematics.SledReference `json:"reference,omitempty"`
}

type Spindle struct {
	ZMm       *float64                     `json:"zMm,omitempty"`
	On        bool                         `json:"on"`
	Reference *kinematics.SpindleReference `json:"reference,omitempty"`
}

type Motor struct {
	Duty float64 `json:"duty"`

	// Offset is the last tracking error, kept for damping.
	Offset *float64 `json:"offset,omitempty"`

	State *driver.MotorReading `json:"state,omitempty"`
}

type Relay struct {
	On    bool                 `json:"on"`
	State *driver.RelayReading `json:"state,omitempty"`
}

// SledPosition returns the sled position if it is known.
func (m Model) SledPosition() (coord.Point, bool) {
	if m.Sled.XMm == nil || m.Sled.YMm == nil {
		return coord.Point{}, false
	}
	p := coord.Point{X: *m.Sled.XMm, Y: *m.Sled.YMm}
	if m.Spindle.ZMm != nil {
		p.Z = *m.Spindle.ZMm
	}
	return p, true
}

// Position returns the full tool position if sled and spindle are known.
func (m Model) Position() (coord.Point, bool) {
	p, ok := m.SledPosition()
	return p, ok && m.Spindle.ZMm != nil
}

// Clone returns a deep copy of m.
func (m Model) Clone() Model {
	c := m
	c.Sled.XMm = clonePtr(m.Sled.XMm)
	c.Sled.YMm = clonePtr(m.Sled.YMm)
	c.Sled.Reference = clonePtr(m.Sled.Reference)
	c.Spindle.ZMm = clonePtr(m.Spindle.ZMm)
	c.Spindle.Reference = clonePtr(m.Spindle.Reference)
	c.Target = clonePtr(m.Target)

	c.Motors = make(map[string]*Motor, len(m.Motors))
	for name, mo := range m.Motors {
		c.Motors[name] = &Motor{
			Duty:   mo.Duty,
			Offset: clonePtr(mo.Offset),
			State:  clonePtr(mo.State),
		}
	}
	c.Relays = make(map[string]*Relay, len(m.Relays))
	for name, r := range m.Relays {
		c.Relays[name] = &Relay{On: r.On, State: clonePtr(r.State)}
	}
	c.Errors = make(map[string]string, len(m.Errors))
	for k, v := range m.Errors {
		c.Errors[k] = v
	}
	return c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func ptr[T any](v T) *T { return &v }
