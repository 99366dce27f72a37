package bmu

import "time"

// ContactorState is the sequencer's position in the precharge/discharge
// cycle.
type ContactorState int

const (
	ContactorOff ContactorState = iota
	ContactorPrecharging
	ContactorDriving
	ContactorDischarging
	ContactorDischarged
)

func (s ContactorState) String() string {
	switch s {
	case ContactorPrecharging:
		return "precharging"
	case ContactorDriving:
		return "driving"
	case ContactorDischarging:
		return "discharging"
	case ContactorDischarged:
		return "discharged"
	default:
		return "off"
	}
}

// sequencerPhase subdivides the precharge and discharge micro-sequences.
// The firmware busy-waited through these; here each phase is entered with a
// timestamp and advanced by the supervisor's evaluation tick, so the loop
// stays responsive.
type sequencerPhase int

const (
	phaseNone sequencerPhase = iota
	phasePrechargeSettle
	phaseDetectWait
	phaseMainSettle
	phaseDischargeSettle
)

// Sequencer drives the precharge, discharge, main HV and solar contactors.
type Sequencer struct {
	log  Logger
	bus  CANBus
	pins Pins

	state        ContactorState
	phase        sequencerPhase
	phaseEntered time.Time

	prechargeTimedOut bool
	solarEnabled      bool
	sendFailures      int
}

func NewSequencer(logger Logger, bus CANBus, pins Pins) *Sequencer {
	return &Sequencer{
		log:   logger,
		bus:   bus,
		pins:  pins,
		state: ContactorOff,
	}
}

func (q *Sequencer) State() ContactorState { return q.state }

// PrechargeTimedOut reports whether the last precharge attempt hit the
// detect deadline. Cleared when a new precharge begins.
func (q *Sequencer) PrechargeTimedOut() bool { return q.prechargeTimedOut }

// SolarEnabled reports the current solar contactor output.
func (q *Sequencer) SolarEnabled() bool { return q.solarEnabled }

// ConsecutiveSendFailures counts contactor command frames that failed to
// transmit since the last success.
func (q *Sequencer) ConsecutiveSendFailures() int { return q.sendFailures }

// engageWanted is the guard for keeping the contactors engaged.
func engageWanted(in *SampledInputs, st *SupervisorState) bool {
	return in.Demand.Ignition && !in.Demand.PreviousIgnition && st.SafeToDrive
}

// Step advances the contactor machine one evaluation pass.
func (q *Sequencer) Step(now time.Time, in *SampledInputs, st *SupervisorState) {
	switch q.state {
	case ContactorOff, ContactorDischarged:
		if engageWanted(in, st) {
			if st.PrechargeState {
				// Already precharged; re-engaging is a no-op.
				q.setSolar(false)
				q.state = ContactorDriving
				break
			}
			q.beginPrecharge(now, st)
		} else {
			q.updateSolar(in, st)
		}

	case ContactorPrecharging:
		if !engageWanted(in, st) {
			q.log.Info("Engage condition lost during precharge, discharging")
			q.beginDischarge(now, st)
			break
		}
		q.stepPrecharge(now, in, st)

	case ContactorDriving:
		if !engageWanted(in, st) {
			q.log.Info("Contactors disengaging, starting discharge")
			q.beginDischarge(now, st)
		}

	case ContactorDischarging:
		if now.Sub(q.phaseEntered) >= DischargeSettle {
			setPin(q.log, q.pins.DischargeDisable, false)
			st.DischargeState = true
			q.state = ContactorDischarged
			q.phase = phaseNone
			q.log.Info("Discharge relay closed, HV box discharged")
		}
		q.updateSolar(in, st)
	}
}

func (q *Sequencer) beginPrecharge(now time.Time, st *SupervisorState) {
	q.log.Info("Starting precharge sequence")
	st.DischargeState = false
	q.prechargeTimedOut = false
	// The solar array must never feed an engaging bus.
	q.setSolar(false)
	// Open the discharge relay (a completed discharge leaves it closed)
	// before closing the precharge relay.
	setPin(q.log, q.pins.DischargeDisable, true)
	setPin(q.log, q.pins.PrechargeEnable, true)
	q.state = ContactorPrecharging
	q.phase = phasePrechargeSettle
	q.phaseEntered = now
}

func (q *Sequencer) stepPrecharge(now time.Time, in *SampledInputs, st *SupervisorState) {
	switch q.phase {
	case phasePrechargeSettle:
		if now.Sub(q.phaseEntered) >= PrechargeSettle {
			q.phase = phaseDetectWait
			q.phaseEntered = now
		}

	case phaseDetectWait:
		if readPin(q.log, q.pins.PrechargeDetect) {
			// Bus is up to voltage: close the main contactor. The
			// precharge relay stays closed through the settle.
			st.PrechargeState = true
			setPin(q.log, q.pins.HVDCEnable, true)
			q.phase = phaseMainSettle
			q.phaseEntered = now
			q.log.Info("Precharge detect asserted, main contactor closed")
			break
		}
		if now.Sub(q.phaseEntered) > PrechargeDetectDeadline {
			q.prechargeTimedOut = true
			q.log.Error("Precharge detect not asserted within %v, aborting", PrechargeDetectDeadline)
			// Require a fresh ignition edge before the next attempt.
			if in.Demand.Ignition {
				in.Demand.Ignition = false
				in.Demand.PreviousIgnition = true
			}
			q.beginDischarge(now, st)
		}

	case phaseMainSettle:
		if now.Sub(q.phaseEntered) >= MainContactorSettle {
			setPin(q.log, q.pins.PrechargeEnable, false)
			q.state = ContactorDriving
			q.phase = phaseNone
			q.log.Info("Precharge relay opened, driving")
		}
	}
}

func (q *Sequencer) beginDischarge(now time.Time, st *SupervisorState) {
	st.PrechargeState = false
	setPin(q.log, q.pins.PrechargeEnable, false)
	setPin(q.log, q.pins.HVDCEnable, false)
	q.state = ContactorDischarging
	q.phase = phaseDischargeSettle
	q.phaseEntered = now
}

// updateSolar gates the solar array contactor. Only called while the main
// contactors are disengaged.
func (q *Sequencer) updateSolar(in *SampledInputs, st *SupervisorState) {
	q.setSolar(in.Demand.Solar && st.SafeToDrive)
}

func (q *Sequencer) setSolar(on bool) {
	if q.solarEnabled == on {
		return
	}
	q.solarEnabled = on
	setPin(q.log, q.pins.SolarEnable, on)
	setPin(q.log, q.pins.SolarLED, on)
}

// CommandContactors publishes the contactor command frame carrying the
// currently desired state. Emitted every beat regardless of state changes.
func (q *Sequencer) CommandContactors(in *SampledInputs, st *SupervisorState) {
	desired := engageWanted(in, st)
	st.ContactorState = desired
	setPin(q.log, q.pins.ContactorLED, desired)

	frame := packFrame(ContactorCommandFrameID, []byte{boolToByte(desired)})
	DebugCANFrame(q.log, "TX", frame.ID, frame.Data, frame.Length)
	if err := q.bus.Publish(frame); err != nil {
		q.sendFailures++
		q.log.Warn("Contactor command send failed (%d consecutive): %v", q.sendFailures, err)
		return
	}
	q.sendFailures = 0
}
