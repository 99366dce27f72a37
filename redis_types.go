package main

import "bmu-service/bmu"

// Redis payload types for BMU status updates

// RedisPackStatus carries one pack's IVT readings.
type RedisPackStatus struct {
	Name             string
	CurrentMA        int32
	VoltageMV        int32
	TemperatureDeciC int32
	Power            int32
	Charge           int32
	Energy           int32
	TemperatureState PackTemperatureState
}

// RedisSupervisorStatus carries the supervisor and sequencer state.
type RedisSupervisorStatus struct {
	SafeToDrive    bool
	Charging       bool
	Precharged     bool
	Discharged     bool
	ContactorOn    bool
	Contactor      bmu.ContactorState
	SolarEnabled   bool
	IvtStale       bool
	DroppedFrames  uint64
	SendFailures   int
}
