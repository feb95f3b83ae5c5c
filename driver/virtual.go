package driver

import (
	"math"
	"sync"
	"time"

	"github.com/mastercactapus/sled/config"
)

// stallDuty is the duty below which a simulated motor does not turn.
const stallDuty = 0.1

// Virtual simulates motors and relays in memory.
//
// Motor positions are integrated lazily from the elapsed time whenever a
// motor is read or its duty changes.
type Virtual struct {
	now func() time.Time
}

var _ Driver = (*Virtual)(nil)

func NewVirtual(now func() time.Time) *Virtual {
	if now == nil {
		now = time.Now
	}
	return &Virtual{now: now}
}

func (v *Virtual) Open() error  { return nil }
func (v *Virtual) Close() error { return nil }

func (v *Virtual) Motor(name string, cfg config.Motor) (Motor, error) {
	rate := cfg.MaxRPM * cfg.EncoderPPR / 60 *
		polarity(cfg.Virtual.MotorPolarity) * polarity(cfg.Virtual.EncoderPolarity)
	return &virtualMotor{
		now:   v.now,
		rate:  rate,
		steps: float64(cfg.Virtual.Steps),
		last:  v.now(),
	}, nil
}

func (v *Virtual) Relay(name string, cfg config.Relay) (Relay, error) {
	return &virtualRelay{}, nil
}

func polarity(p float64) float64 {
	if p == 0 {
		return 1
	}
	return p
}

type virtualMotor struct {
	now func() time.Time

	// rate is steps per second at full duty
	rate float64

	mx    sync.Mutex
	duty  float64
	steps float64
	last  time.Time
}

func (m *virtualMotor) advance() {
	t := m.now()
	dt := t.Sub(m.last).Seconds()
	m.last = t
	if math.Abs(m.duty) > stallDuty {
		m.steps += m.rate * m.duty * dt
	}
}

func (m *virtualMotor) Get() (MotorReading, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.advance()
	return MotorReading{
		Steps: int64(math.Round(m.steps)),
		Duty:  m.duty,
	}, nil
}

func (m *virtualMotor) Set(duty float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.advance()
	m.duty = math.Max(-1, math.Min(1, duty))
	return nil
}

type virtualRelay struct {
	mx sync.Mutex
	on bool
}

func (r *virtualRelay) Get() (RelayReading, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return RelayReading{On: r.on}, nil
}

func (r *virtualRelay) Set(on bool) error {
	r.mx.Lock()
	r.on = on
	r.mx.Unlock()
	return nil
}
