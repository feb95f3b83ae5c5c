package driver

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mastercactapus/sled/config"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

// Bus performs a combined write/read transaction with the device at addr.
// Either w or r may be empty.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// BusDriver drives controllers attached to a shared Bus.
type BusDriver struct {
	bus     Bus
	reset   gpio.PinOut
	settle  time.Duration
	retries int
	log     *slog.Logger

	sleep func(time.Duration)

	// transactions are serialized across all devices
	mx sync.Mutex
}

var _ Driver = (*BusDriver)(nil)

// NewBusDriver returns a driver for bus. reset may be nil.
func NewBusDriver(bus Bus, reset gpio.PinOut, cfg config.Bus, log *slog.Logger) *BusDriver {
	return &BusDriver{
		bus:     bus,
		reset:   reset,
		settle:  time.Duration(cfg.ResetSettleMs) * time.Millisecond,
		retries: cfg.Retries,
		log:     log.With("component", "driver"),
		sleep:   time.Sleep,
	}
}

// Open pulses the reset line so all controllers start from a known state.
func (d *BusDriver) Open() error {
	if d.reset == nil {
		return nil
	}
	d.log.Info("resetting controllers", "pin", d.reset.String())

	err := d.reset.Out(gpio.Low)
	d.sleep(d.settle)
	err = multierr.Append(err, d.reset.Out(gpio.High))
	d.sleep(d.settle)

	return errors.Wrap(err, "reset controllers")
}

func (d *BusDriver) Close() error {
	var err error
	if d.reset != nil {
		err = d.reset.Halt()
	}
	if c, ok := d.bus.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (d *BusDriver) tx(addr uint16, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	var err error
	for i := 0; i <= d.retries; i++ {
		err = d.bus.Tx(addr, w, r)
		if err == nil {
			return nil
		}
		d.log.Debug("bus transaction failed", "addr", addr, "attempt", i+1, "err", err)
	}
	return errors.Wrapf(err, "device 0x%02x", addr)
}

func (d *BusDriver) Motor(name string, cfg config.Motor) (Motor, error) {
	if cfg.Address == 0 {
		return nil, errors.Errorf("motor %s: no address", name)
	}
	return &busMotor{d: d, addr: cfg.Address}, nil
}

func (d *BusDriver) Relay(name string, cfg config.Relay) (Relay, error) {
	if cfg.Address == 0 {
		return nil, errors.Errorf("relay %s: no address", name)
	}
	return &busRelay{d: d, addr: cfg.Address}, nil
}

type busMotor struct {
	d    *BusDriver
	addr uint16
}

func (m *busMotor) Get() (MotorReading, error) {
	buf := make([]byte, motorReadingSize)
	err := m.d.tx(m.addr, nil, buf)
	if err != nil {
		return MotorReading{}, err
	}
	return DecodeMotorReading(buf)
}

func (m *busMotor) Set(duty float64) error {
	return m.d.tx(m.addr, EncodeDuty(duty), nil)
}

type busRelay struct {
	d    *BusDriver
	addr uint16
}

func (r *busRelay) Get() (RelayReading, error) {
	buf := make([]byte, relayReadingSize)
	err := r.d.tx(r.addr, nil, buf)
	if err != nil {
		return RelayReading{}, err
	}
	return DecodeRelayReading(buf)
}

func (r *busRelay) Set(on bool) error {
	return r.d.tx(r.addr, EncodeRelay(on), nil)
}
