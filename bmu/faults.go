package bmu

// Fault identifies one supervisor fault condition.
type Fault uint32

const (
	FaultNone Fault = iota
	FaultOverCurrent
	FaultUnderVoltage
	FaultOverVoltage
	FaultUnderTemperature
	FaultOverTemperature
	FaultIvtStale
	FaultPrechargeTimeout
)

// faultLast is the highest defined fault; diag iterates up to it.
const faultLast = FaultPrechargeTimeout

type FaultSeverity int

const (
	SeverityWarning FaultSeverity = iota
	SeverityCritical
)

type FaultConfig struct {
	Code        Fault
	Description string
	Severity    FaultSeverity
}

var faultConfigs = map[Fault]FaultConfig{
	FaultOverCurrent:      {FaultOverCurrent, "Pack over-current", SeverityCritical},
	FaultUnderVoltage:     {FaultUnderVoltage, "Pack under-voltage", SeverityCritical},
	FaultOverVoltage:      {FaultOverVoltage, "Pack over-voltage", SeverityCritical},
	FaultUnderTemperature: {FaultUnderTemperature, "IVT under-temperature", SeverityCritical},
	FaultOverTemperature:  {FaultOverTemperature, "IVT over-temperature", SeverityCritical},
	FaultIvtStale:         {FaultIvtStale, "IVT data stale", SeverityCritical},
	FaultPrechargeTimeout: {FaultPrechargeTimeout, "Precharge detect timeout", SeverityCritical},
}

func GetFaultConfig(fault Fault) (FaultConfig, bool) {
	config, ok := faultConfigs[fault]
	return config, ok
}

// FaultRange calls fn for every defined fault code in order.
func FaultRange(fn func(Fault)) {
	for f := FaultNone + 1; f <= faultLast; f++ {
		fn(f)
	}
}

// ActiveFaults maps the state's fault bits to fault codes.
func (st *SupervisorState) ActiveFaults() map[Fault]bool {
	faults := make(map[Fault]bool)
	if st.OverCurrent {
		faults[FaultOverCurrent] = true
	}
	if st.UnderVoltage {
		faults[FaultUnderVoltage] = true
	}
	if st.OverVoltage {
		faults[FaultOverVoltage] = true
	}
	if st.UnderTemperature {
		faults[FaultUnderTemperature] = true
	}
	if st.OverTemperature {
		faults[FaultOverTemperature] = true
	}
	if st.IvtTimeout {
		faults[FaultIvtStale] = true
	}
	return faults
}
