package bmu

import "time"

// Safety limits for the HV packs. Each pack is 16S48P: the over-voltage
// bound is 4.19 V * 16 = 67.04 V and the under-voltage bound 3.00 V * 16.
const (
	MaxDischargeCurrentMA = 100000
	MaxChargeCurrentMA    = -100000

	MaxPackVoltageMV        = 67040
	MinPackVoltageMV        = 48000
	PackVoltageHysteresisMV = 160

	MaxIvtTemperatureC        = 75
	MinIvtTemperatureC        = 2
	IvtTemperatureHysteresisC = 1
)

// Timing constants.
const (
	// IvtTimeout is the maximum age of the last IVT current frame before
	// the pack data is considered stale.
	IvtTimeout = 1000 * time.Millisecond

	// CANSendTimeout bounds a single frame transmission.
	CANSendTimeout = 100 * time.Millisecond

	// IvtConfigSettle is the gap between IVT configuration commands.
	IvtConfigSettle = 50 * time.Microsecond

	// PrechargeSettle is the hold after closing the precharge relay
	// before the detect input is consulted.
	PrechargeSettle = 500 * time.Millisecond

	// PrechargeDetectDeadline bounds the wait for the DC bus to come up
	// to voltage. The firmware waited forever; a stuck detect now aborts
	// the sequence instead of latching the whole unit.
	PrechargeDetectDeadline = 10 * time.Second

	// MainContactorSettle is the overlap between the main contactor
	// closing and the precharge relay opening.
	MainContactorSettle = 100 * time.Millisecond

	// DischargeSettle is the gap between opening the main contactor and
	// closing the discharge relay.
	DischargeSettle = 100 * time.Millisecond

	// HeartbeatPeriod is the status broadcast cadence.
	HeartbeatPeriod = time.Second

	// EvalPeriod is the supervisor's evaluation tick.
	EvalPeriod = 10 * time.Millisecond
)
