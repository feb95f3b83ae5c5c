// Package driver talks to the motor and relay controllers.
package driver

import (
	"log/slog"
	"time"

	"github.com/mastercactapus/sled/config"
	"github.com/pkg/errors"
)

// MotorReading is the state reported by a motor controller.
type MotorReading struct {
	Steps     int64   `json:"steps"`
	Duty      float64 `json:"duty"`
	Stops     [2]bool `json:"stops"`
	CurrentMA int     `json:"currentMa"`
}

// RelayReading is the state reported by a relay controller.
type RelayReading struct {
	On bool `json:"on"`
}

type Motor interface {
	Get() (MotorReading, error)

	// Set applies a duty in [-1, 1]; the sign selects direction.
	Set(duty float64) error
}

type Relay interface {
	Get() (RelayReading, error)
	Set(on bool) error
}

// Driver creates handles for the configured hardware.
type Driver interface {
	Open() error
	Motor(name string, cfg config.Motor) (Motor, error)
	Relay(name string, cfg config.Relay) (Relay, error)
	Close() error
}

// New returns the driver selected by cfg.Driver.
func New(cfg config.Config, log *slog.Logger) (Driver, error) {
	switch cfg.Driver {
	case "", "virtual":
		return NewVirtual(time.Now), nil
	case "i2c":
	default:
		return nil, errors.Errorf("unknown driver: %s", cfg.Driver)
	}

	switch cfg.Bus.Kind {
	case "", "periph":
		bus, reset, err := OpenPeriph(cfg.Bus)
		if err != nil {
			return nil, err
		}
		return NewBusDriver(bus, reset, cfg.Bus, log), nil
	case "serial":
		bus, err := OpenSerial(cfg.Bus)
		if err != nil {
			return nil, err
		}
		return NewBusDriver(bus, nil, cfg.Bus, log), nil
	}
	return nil, errors.Errorf("unknown bus kind: %s", cfg.Bus.Kind)
}
