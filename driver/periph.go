package driver

import (
	"github.com/mastercactapus/sled/config"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// OpenPeriph opens a native I2C bus and, if configured, the controller
// reset pin.
func OpenPeriph(cfg config.Bus) (Bus, gpio.PinOut, error) {
	_, err := host.Init()
	if err != nil {
		return nil, nil, errors.Wrap(err, "init host drivers")
	}

	bus, err := i2creg.Open(cfg.Name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open i2c bus %q", cfg.Name)
	}
	if cfg.ResetPin == "" {
		return bus, nil, nil
	}

	pin := gpioreg.ByName(cfg.ResetPin)
	if pin == nil {
		bus.Close()
		return nil, nil, errors.Errorf("unknown reset pin: %s", cfg.ResetPin)
	}
	return bus, pin, nil
}
