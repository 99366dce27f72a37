package bmu

import (
	"time"

	"github.com/brutella/can"
)

// CANBus is the transmit side of the CAN connection. *can.Bus satisfies it;
// tests substitute a recording fake.
type CANBus interface {
	Publish(frame can.Frame) error
}

// OutputPin drives a single digital output (relay driver, solar enable, LED).
type OutputPin interface {
	Set(high bool) error
}

// InputPin reads a single digital input.
type InputPin interface {
	Get() (bool, error)
}

// Pins is the GPIO surface of the BMU. LED pins may be nil; nil pins are
// skipped.
type Pins struct {
	PrechargeEnable  OutputPin
	DischargeDisable OutputPin
	HVDCEnable       OutputPin
	SolarEnable      OutputPin
	PrechargeDetect  InputPin

	SafeLED      OutputPin
	ContactorLED OutputPin
	SolarLED     OutputPin
	ChargingLED  OutputPin
}

// Config carries the supervisor's dependencies.
type Config struct {
	Logger Logger
	Bus    CANBus
	Pins   Pins

	// Settle is the delay applied between IVT configuration commands.
	// Defaults to time.Sleep.
	Settle func(d time.Duration)
}

// setPin writes an output pin, tolerating nil pins and logging failures.
func setPin(logger Logger, p OutputPin, high bool) {
	if p == nil {
		return
	}
	if err := p.Set(high); err != nil && logger != nil {
		logger.Error("Failed to set pin to %v: %v", high, err)
	}
}

// readPin reads an input pin; a read failure reads as low.
func readPin(logger Logger, p InputPin) bool {
	if p == nil {
		return false
	}
	high, err := p.Get()
	if err != nil {
		if logger != nil {
			logger.Error("Failed to read pin: %v", err)
		}
		return false
	}
	return high
}
