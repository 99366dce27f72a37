package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"bmu-service/bmu"
)

// GPIO line numbers for the relay drivers, detect input, solar enable and
// status LEDs.
const (
	gpioHVDCEnable       = 5
	gpioPrechargeEnable  = 7
	gpioDischargeDisable = 8
	gpioSolarEnable      = 11
	gpioPrechargeDetect  = 15

	gpioSafeLED      = 21
	gpioContactorLED = 22
	gpioSolarLED     = 23
	gpioChargingLED  = 24
)

// sysfsPin is one exported GPIO line under the sysfs base path.
type sysfsPin struct {
	base   string
	number int
}

func (p *sysfsPin) dir() string {
	return filepath.Join(p.base, fmt.Sprintf("gpio%d", p.number))
}

func (p *sysfsPin) export(direction string) error {
	if _, err := os.Stat(p.dir()); err != nil {
		exportPath := filepath.Join(p.base, "export")
		if werr := os.WriteFile(exportPath, []byte(fmt.Sprintf("%d", p.number)), 0644); werr != nil {
			// Export fails with EBUSY when the line is already
			// exported; any other failure is fatal.
			if _, serr := os.Stat(p.dir()); serr != nil {
				return errors.Wrapf(werr, "export gpio%d", p.number)
			}
		}
	}
	directionPath := filepath.Join(p.dir(), "direction")
	if err := os.WriteFile(directionPath, []byte(direction), 0644); err != nil {
		return errors.Wrapf(err, "set gpio%d direction", p.number)
	}
	return nil
}

type sysfsOutputPin struct {
	sysfsPin
}

func (p *sysfsOutputPin) Set(high bool) error {
	value := []byte("0")
	if high {
		value = []byte("1")
	}
	if err := os.WriteFile(filepath.Join(p.dir(), "value"), value, 0644); err != nil {
		return errors.Wrapf(err, "write gpio%d", p.number)
	}
	return nil
}

type sysfsInputPin struct {
	sysfsPin
}

func (p *sysfsInputPin) Get() (bool, error) {
	raw, err := os.ReadFile(filepath.Join(p.dir(), "value"))
	if err != nil {
		return false, errors.Wrapf(err, "read gpio%d", p.number)
	}
	return bytes.HasPrefix(raw, []byte("1")), nil
}

func newOutputPin(base string, number int) (bmu.OutputPin, error) {
	p := &sysfsOutputPin{sysfsPin{base: base, number: number}}
	if err := p.export("out"); err != nil {
		return nil, err
	}
	return p, nil
}

func newInputPin(base string, number int) (bmu.InputPin, error) {
	p := &sysfsInputPin{sysfsPin{base: base, number: number}}
	if err := p.export("in"); err != nil {
		return nil, err
	}
	return p, nil
}

// setupPins exports and configures the full GPIO surface. The relay and
// detect pins are required; a failed LED leaves its slot nil and the
// supervisor skips it.
func setupPins(log *LeveledLogger, base string) (bmu.Pins, error) {
	var pins bmu.Pins
	var err error

	if pins.PrechargeEnable, err = newOutputPin(base, gpioPrechargeEnable); err != nil {
		return pins, err
	}
	if pins.DischargeDisable, err = newOutputPin(base, gpioDischargeDisable); err != nil {
		return pins, err
	}
	if pins.HVDCEnable, err = newOutputPin(base, gpioHVDCEnable); err != nil {
		return pins, err
	}
	if pins.SolarEnable, err = newOutputPin(base, gpioSolarEnable); err != nil {
		return pins, err
	}
	if pins.PrechargeDetect, err = newInputPin(base, gpioPrechargeDetect); err != nil {
		return pins, err
	}

	leds := []struct {
		slot   *bmu.OutputPin
		number int
		name   string
	}{
		{&pins.SafeLED, gpioSafeLED, "safe"},
		{&pins.ContactorLED, gpioContactorLED, "contactor"},
		{&pins.SolarLED, gpioSolarLED, "solar"},
		{&pins.ChargingLED, gpioChargingLED, "charging"},
	}
	for _, led := range leds {
		pin, err := newOutputPin(base, led.number)
		if err != nil {
			log.Warn("LED %s unavailable: %v", led.name, err)
			continue
		}
		*led.slot = pin
	}

	return pins, nil
}
