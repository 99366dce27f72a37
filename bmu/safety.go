package bmu

import "time"

// Evaluate runs one safety pass: fault flags from the sampled inputs,
// charging detection, IVT freshness, and the safe-to-drive aggregate. A
// bound that was latched on the previous pass clears only once the reading
// has crossed back through its hysteresis band.
//
// When a fault is present the ignition demand is forcibly cleared.
// PreviousIgnition is left set so that an off-to-on toggle after recovery is
// still seen as a rising edge.
func Evaluate(in *SampledInputs, st *SupervisorState, now time.Time) {
	st.ChargingState = in.MaxCurrent() < 0

	st.OverCurrent = in.MaxCurrent() >= MaxDischargeCurrentMA ||
		in.MinCurrent() < MaxChargeCurrentMA

	evaluateVoltage(in, st)
	evaluateTemperature(in, st)

	st.IvtTimeout = in.LastCurrentUpdate.IsZero() ||
		now.Sub(in.LastCurrentUpdate) > IvtTimeout

	st.ErrorFlag = st.OverCurrent || st.UnderVoltage || st.OverVoltage ||
		st.UnderTemperature || st.OverTemperature || st.IvtTimeout
	st.SafeToDrive = !st.ErrorFlag

	if st.ErrorFlag && in.Demand.Ignition {
		in.Demand.Ignition = false
		in.Demand.PreviousIgnition = true
	}
}

func evaluateVoltage(in *SampledInputs, st *SupervisorState) {
	upper := int32(MaxPackVoltageMV)
	if st.Latched.VoltageHigh {
		upper -= PackVoltageHysteresisMV
	}
	lower := int32(MinPackVoltageMV)
	if st.Latched.VoltageLow {
		lower += PackVoltageHysteresisMV
	}

	over, under := false, false
	for p := 0; p < PackCount; p++ {
		v := in.Ivt[p].Voltage1
		if v.At.IsZero() {
			continue
		}
		if v.Value > upper {
			over = true
		}
		if v.Value < lower {
			under = true
		}
	}

	st.OverVoltage = over
	st.UnderVoltage = under
	st.Latched.VoltageHigh = over
	st.Latched.VoltageLow = under
}

func evaluateTemperature(in *SampledInputs, st *SupervisorState) {
	// Readings are tenths of a degree; the bounds are whole degrees.
	upper := int32(MaxIvtTemperatureC) * 10
	if st.Latched.TemperatureHigh {
		upper -= IvtTemperatureHysteresisC * 10
	}
	lower := int32(MinIvtTemperatureC) * 10
	if st.Latched.TemperatureLow {
		lower += IvtTemperatureHysteresisC * 10
	}

	over, under := false, false
	for p := 0; p < PackCount; p++ {
		t := in.Ivt[p].Temperature
		if t.At.IsZero() {
			continue
		}
		if t.Value > upper {
			over = true
		}
		if t.Value < lower {
			under = true
		}
	}

	st.OverTemperature = over
	st.UnderTemperature = under
	st.Latched.TemperatureHigh = over
	st.Latched.TemperatureLow = under
}
