// Package machine runs the control loop of the sled.
package machine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mastercactapus/sled/config"
	"github.com/mastercactapus/sled/driver"
	"github.com/mastercactapus/sled/kinematics"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
)

var (
	motorNames = []string{"a", "b", "z"}
	relayNames = []string{"spindle", "hoover"}
)

// Checkpoint persists the last known position across restarts.
type Checkpoint interface {
	LastPosition() config.Position
	SetLastPosition(config.Position)
}

// Machine owns the Model and the hardware handles. All changes to the
// Model are serialized through its lock and observed at tick boundaries.
type Machine struct {
	log        *slog.Logger
	checkpoint Checkpoint

	motors map[string]driver.Motor
	relays map[string]driver.Relay

	mx      sync.Mutex
	cfg     config.Config
	geo     kinematics.Geometry
	law     DutyLaw
	model   Model
	waiters []chan syncResult
	jogs    map[string]*jog

	// job is set while a job function is running, even after an
	// emergency stop has forced STANDBY
	job     bool
	claimed bool

	notifying bool
	notified  bool
	lastHash  uint64

	lMx       sync.Mutex
	listeners []func(Model)
}

// New creates a Machine using drv for hardware access. A failure to open
// the driver is logged and the machine starts degraded.
func New(cfg config.Config, cp Checkpoint, drv driver.Driver, log *slog.Logger) (*Machine, error) {
	log = log.With("component", "machine")
	m := &Machine{
		log:        log,
		checkpoint: cp,
		motors:     make(map[string]driver.Motor, len(motorNames)),
		relays:     make(map[string]driver.Relay, len(relayNames)),
		jogs:       make(map[string]*jog),
		model: Model{
			Mode:   ModeStandby,
			Motors: make(map[string]*Motor, len(motorNames)),
			Relays: make(map[string]*Relay, len(relayNames)),
			Errors: make(map[string]string),
		},
	}
	m.configure(cfg)

	err := drv.Open()
	if err != nil {
		log.Error("open driver", "err", err)
	}

	for _, name := range motorNames {
		mc, ok := cfg.Motors[name]
		if !ok {
			return nil, errors.Errorf("motor %s: not configured", name)
		}
		m.motors[name], err = drv.Motor(name, mc)
		if err != nil {
			return nil, errors.Wrapf(err, "motor %s", name)
		}
		m.model.Motors[name] = &Motor{}
	}
	for _, name := range relayNames {
		rc, ok := cfg.Relays[name]
		if !ok {
			return nil, errors.Errorf("relay %s: not configured", name)
		}
		m.relays[name], err = drv.Relay(name, rc)
		if err != nil {
			return nil, errors.Wrapf(err, "relay %s", name)
		}
		m.model.Relays[name] = &Relay{}
	}

	return m, nil
}

func (m *Machine) configure(cfg config.Config) {
	m.cfg = cfg.Clone()
	m.geo = cfg.Geometry()
	m.law = NewDutyLaw(cfg.DutyLaw)
}

// Reconfigure applies new tuning and geometry from cfg. Hardware handles
// are not recreated.
func (m *Machine) Reconfigure(cfg config.Config) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.configure(cfg)
}

// Config returns the configuration the machine is running with.
func (m *Machine) Config() config.Config {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.cfg.Clone()
}

// OnStateChanged registers fn to be called with a snapshot of the Model
// whenever it changes.
func (m *Machine) OnStateChanged(fn func(Model)) {
	m.lMx.Lock()
	m.listeners = append(m.listeners, fn)
	m.lMx.Unlock()
}

// State returns a snapshot of the Model.
func (m *Machine) State() Model {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.model.Clone()
}

// Run ticks until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	m.mx.Lock()
	interval := time.Duration(m.cfg.TickMs) * time.Millisecond
	m.mx.Unlock()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	m.log.Info("control loop started", "interval", interval)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.Tick()
		}
	}
}

type motorResult struct {
	reading driver.MotorReading
	err     error
}

type relayResult struct {
	reading driver.RelayReading
	err     error
}

// Tick runs one control cycle. It never panics.
func (m *Machine) Tick() {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		m.log.Error("tick failed", "panic", r)
		m.mx.Lock()
		m.model.Errors["check"] = fmt.Sprint(r)
		m.mx.Unlock()
	}()

	motors := make(map[string]motorResult, len(m.motors))
	for name, mo := range m.motors {
		var res motorResult
		res.reading, res.err = mo.Get()
		motors[name] = res
	}
	relays := make(map[string]relayResult, len(m.relays))
	for name, r := range m.relays {
		var res relayResult
		res.reading, res.err = r.Get()
		relays[name] = res
	}

	duties, switches := m.update(motors, relays)

	errs := make(map[string]error)
	for name, duty := range duties {
		errs["motor."+name+".set"] = m.motors[name].Set(duty)
	}
	for name, on := range switches {
		errs["relay."+name+".set"] = m.relays[name].Set(on)
	}

	m.mx.Lock()
	defer m.mx.Unlock()
	for key, err := range errs {
		m.setError(key, err)
	}
	delete(m.model.Errors, "check")
}

// update applies hardware readings and computes everything derived from
// them. It returns the duties and relay states to write.
func (m *Machine) update(motors map[string]motorResult, relays map[string]relayResult) (map[string]float64, map[string]bool) {
	m.mx.Lock()
	defer m.mx.Unlock()

	for name, res := range motors {
		mo := m.model.Motors[name]
		m.setError("motor."+name+".get", res.err)
		if res.err != nil {
			mo.State = nil
			continue
		}
		mo.State = ptr(res.reading)
	}
	for name, res := range relays {
		r := m.model.Relays[name]
		m.setError("relay."+name+".get", res.err)
		if res.err != nil {
			r.State = nil
			continue
		}
		r.State = ptr(res.reading)
	}

	m.derive()
	m.ramp()
	m.track()
	m.interlock()
	m.notify()
	m.resolve()

	duties := make(map[string]float64, len(m.model.Motors))
	for name, mo := range m.model.Motors {
		duties[name] = mo.Duty
	}
	switches := make(map[string]bool, len(m.model.Relays))
	for name, r := range m.model.Relays {
		switches[name] = r.On
	}
	return duties, switches
}

func (m *Machine) setError(key string, err error) {
	if err == nil {
		delete(m.model.Errors, key)
		return
	}
	if _, ok := m.model.Errors[key]; !ok {
		m.log.Warn("hardware error", "key", key, "err", err)
	}
	m.model.Errors[key] = err.Error()
}

// track drives duties toward the target.
//
// While a job has claimed the duties only the offsets are recorded.
func (m *Machine) track() {
	md := &m.model
	pos, ok := md.Position()
	if !ok || md.Target == nil {
		for _, mo := range md.Motors {
			mo.Offset = nil
		}
		return
	}

	ta, tb := m.geo.ChainLengths(*md.Target)
	sa, sb := m.geo.ChainLengths(pos)
	offsets := map[string]float64{
		"a": ta - sa,
		"b": tb - sb,
		"z": pos.Z - md.Target.Z,
	}

	for name, offset := range offsets {
		mo := md.Motors[name]
		if !m.claimed {
			var prev float64
			if mo.Offset != nil {
				prev = *mo.Offset
			}
			mo.Duty = m.law.Duty(offset, prev, mo.Duty, m.cfg.Motors[name].OffsetToDuty)
		}
		mo.Offset = ptr(offset)
	}
}

// interlock runs the hoover whenever the spindle is on and plunged.
func (m *Machine) interlock() {
	spindle := m.model.Relays["spindle"].State
	m.model.Spindle.On = spindle != nil && spindle.On

	z := m.model.Spindle.ZMm
	m.model.Relays["hoover"].On = m.model.Spindle.On && z != nil && *z < 0
}

// notify starts a listener fan-out if the Model changed since the last
// one and no fan-out is in progress.
func (m *Machine) notify() {
	if m.notifying {
		return
	}
	h, err := hashstructure.Hash(m.model, hashstructure.FormatV2, nil)
	if err != nil {
		m.log.Error("hash model", "err", err)
		return
	}
	if m.notified && h == m.lastHash {
		return
	}
	m.lastHash = h
	m.notified = true
	m.notifying = true

	go m.fanOut(m.model.Clone())
}

func (m *Machine) fanOut(snap Model) {
	defer func() {
		m.mx.Lock()
		m.notifying = false
		m.mx.Unlock()
	}()

	m.lMx.Lock()
	listeners := append([]func(Model){}, m.listeners...)
	m.lMx.Unlock()

	for i, fn := range listeners {
		snap := snap
		if i < len(listeners)-1 {
			snap = snap.Clone()
		}
		m.call(fn, snap)
	}
}

func (m *Machine) call(fn func(Model), snap Model) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state listener failed", "panic", r)
		}
	}()
	fn(snap)
}
