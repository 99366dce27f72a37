package main

import "bmu-service/bmu"

// PackTemperatureState is the coarse classification the rest of the fleet
// consumes over IPC.
type PackTemperatureState int

const (
	PackTemperatureStateUnknown PackTemperatureState = iota
	PackTemperatureStateCold
	PackTemperatureStateHot
	PackTemperatureStateIdeal
)

// ClassifyPackTemperature maps an IVT temperature reading (tenths of a
// degree) onto the cold/ideal/hot vocabulary. A never-reported reading is
// unknown.
func ClassifyPackTemperature(r bmu.Reading) PackTemperatureState {
	if r.At.IsZero() {
		return PackTemperatureStateUnknown
	}
	switch {
	case r.Value < bmu.MinIvtTemperatureC*10:
		return PackTemperatureStateCold
	case r.Value > bmu.MaxIvtTemperatureC*10:
		return PackTemperatureStateHot
	default:
		return PackTemperatureStateIdeal
	}
}

func (s PackTemperatureState) String() string {
	switch s {
	case PackTemperatureStateCold:
		return "cold"
	case PackTemperatureStateHot:
		return "hot"
	case PackTemperatureStateIdeal:
		return "ideal"
	case PackTemperatureStateUnknown:
		fallthrough
	default:
		return "unknown"
	}
}
