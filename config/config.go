// Package config holds the persisted machine configuration.
package config

import (
	"github.com/mastercactapus/sled/coord"
	"github.com/mastercactapus/sled/kinematics"
)

type Config struct {
	Driver string `json:"driver"`
	Bus    Bus    `json:"bus"`
	TickMs int    `json:"tickMs"`

	Beam      Beam      `json:"beam"`
	Workspace Workspace `json:"workspace"`

	Motors map[string]Motor `json:"motors"`
	Relays map[string]Relay `json:"relays"`

	DutyLaw DutyLaw `json:"dutyLaw"`
	Router  Router  `json:"router"`
	Manual  Manual  `json:"manual"`

	// Surface holds probed stock heights in user space used to
	// compensate Z targets. Fewer than 3 points disables compensation.
	Surface []coord.Point `json:"surface,omitempty"`

	LastPosition Position `json:"lastPosition"`
}

// Bus configures the physical driver transport.
type Bus struct {
	// Kind is "periph" for a native I2C bus or "serial" for a bridge
	// attached to a serial port.
	Kind string `json:"kind"`

	// Name is the periph bus name; empty selects the default bus.
	Name string `json:"name,omitempty"`

	Port string `json:"port,omitempty"`
	Baud int    `json:"baud,omitempty"`

	// ResetPin is the GPIO name toggled on open, if any.
	ResetPin      string `json:"resetPin,omitempty"`
	ResetSettleMs int    `json:"resetSettleMs"`

	Retries int `json:"retries"`
}

type Beam struct {
	MotorsDistanceMm    float64 `json:"motorsDistanceMm"`
	MotorsToWorkspaceMm float64 `json:"motorsToWorkspaceMm"`
}

type Workspace struct {
	WidthMm  float64 `json:"widthMm"`
	HeightMm float64 `json:"heightMm"`
}

type Motor struct {
	Address    uint16  `json:"address"`
	EncoderPPR float64 `json:"encoderPpr"`
	GearRatio  float64 `json:"gearRatio"`
	MmPerRev   float64 `json:"mmPerRev"`
	StepsPerMm float64 `json:"stepsPerMm"`

	OffsetToDuty float64 `json:"offsetToDuty"`

	MaxRPM  float64      `json:"maxRpm"`
	Virtual VirtualMotor `json:"virtual"`
}

// VirtualMotor tunes the simulated driver.
type VirtualMotor struct {
	Steps           int64   `json:"steps"`
	MotorPolarity   float64 `json:"motorPolarity"`
	EncoderPolarity float64 `json:"encoderPolarity"`
}

type Relay struct {
	Address uint16 `json:"address"`
}

// DutyLaw holds the empirical constants of the target tracking law.
type DutyLaw struct {
	Exponent     float64 `json:"exponent"`
	Damping      float64 `json:"damping"`
	ChatterDelta float64 `json:"chatterDelta"`
	DeadbandMm   float64 `json:"deadbandMm"`
}

type Router struct {
	KP                  float64 `json:"kp"`
	KD                  float64 `json:"kd"`
	DefaultFeedMmPerMin float64 `json:"defaultFeedMmPerMin"`
}

// Manual configures jogging per motor group: a, b, z and xy.
type Manual struct {
	Jog map[string]Jog `json:"jog"`
}

// Jog ramps a manual move from Min by Step every tick up to Max. Chain
// moves are held to CuttingMax unless the Z motor rests on its home stop.
type Jog struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	CuttingMax float64 `json:"cuttingMax,omitempty"`
	Step       float64 `json:"step"`
}

// Position is the last known machine position. Nil fields are unknown.
type Position struct {
	XMm *float64 `json:"xMm,omitempty"`
	YMm *float64 `json:"yMm,omitempty"`
	ZMm *float64 `json:"zMm,omitempty"`
}

func (m Motor) Axis() kinematics.Axis {
	return kinematics.Axis{
		EncoderPPR: m.EncoderPPR,
		GearRatio:  m.GearRatio,
		MmPerRev:   m.MmPerRev,
		StepsPerMm: m.StepsPerMm,
	}
}

// Geometry returns the kinematic description of the machine.
func (c Config) Geometry() kinematics.Geometry {
	return kinematics.Geometry{
		MotorsDistanceMm:    c.Beam.MotorsDistanceMm,
		MotorsToWorkspaceMm: c.Beam.MotorsToWorkspaceMm,
		WorkspaceWidthMm:    c.Workspace.WidthMm,
		WorkspaceHeightMm:   c.Workspace.HeightMm,
		A:                   c.Motors["a"].Axis(),
		B:                   c.Motors["b"].Axis(),
		Z:                   c.Motors["z"].Axis(),
	}
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	chain := Motor{
		EncoderPPR:   12,
		GearRatio:    250,
		MmPerRev:     63.5,
		OffsetToDuty: 0.5,
		MaxRPM:       5000,
		Virtual:      VirtualMotor{MotorPolarity: 1, EncoderPolarity: 1},
	}
	a, b := chain, chain
	chainJog := Jog{Min: 0.2, Max: 1, CuttingMax: 0.6, Step: 0.02}
	a.Address = 0x51
	b.Address = 0x52
	return Config{
		Driver: "virtual",
		Bus: Bus{
			Kind:          "periph",
			Baud:          115200,
			ResetSettleMs: 500,
			Retries:       3,
		},
		TickMs: 100,
		Beam: Beam{
			MotorsDistanceMm:    3500,
			MotorsToWorkspaceMm: 600,
		},
		Workspace: Workspace{
			WidthMm:  2440,
			HeightMm: 1220,
		},
		Motors: map[string]Motor{
			"a": a,
			"b": b,
			"z": {
				Address:      0x53,
				EncoderPPR:   12,
				GearRatio:    100,
				MmPerRev:     2,
				OffsetToDuty: 2,
				MaxRPM:       5000,
				Virtual:      VirtualMotor{MotorPolarity: -1, EncoderPolarity: 1},
			},
		},
		Relays: map[string]Relay{
			"spindle": {Address: 0x61},
			"hoover":  {Address: 0x62},
		},
		DutyLaw: DutyLaw{
			Exponent:     0.25,
			Damping:      0.5,
			ChatterDelta: 0.4,
		},
		Router: Router{
			KP:                  0.02,
			KD:                  0.05,
			DefaultFeedMmPerMin: 1000,
		},
		Manual: Manual{
			Jog: map[string]Jog{
				"a":  chainJog,
				"b":  chainJog,
				"xy": chainJog,
				"z":  {Min: 0.2, Max: 0.8, Step: 0.02},
			},
		},
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Motors = make(map[string]Motor, len(c.Motors))
	for k, v := range c.Motors {
		out.Motors[k] = v
	}
	out.Relays = make(map[string]Relay, len(c.Relays))
	for k, v := range c.Relays {
		out.Relays[k] = v
	}
	out.Manual.Jog = make(map[string]Jog, len(c.Manual.Jog))
	for k, v := range c.Manual.Jog {
		out.Manual.Jog[k] = v
	}
	if c.Surface != nil {
		out.Surface = append([]coord.Point(nil), c.Surface...)
	}
	out.LastPosition = c.LastPosition.clone()
	return out
}

func (p Position) clone() Position {
	cp := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		c := *v
		return &c
	}
	return Position{XMm: cp(p.XMm), YMm: cp(p.YMm), ZMm: cp(p.ZMm)}
}
