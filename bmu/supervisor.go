package bmu

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brutella/can"
)

// updateRingSize bounds the frame ring between the CAN receive goroutine
// and the supervisor loop. Overflow drops the frame and counts it.
const updateRingSize = 64

// Supervisor owns the sampled state, runs the safety evaluator and the
// contactor sequencer, and emits the heartbeat.
//
// Concurrency model: Handle runs on the CAN bus goroutine and only decodes
// and enqueues. Everything else happens on the Run loop. The mutex exists
// for Snapshot readers.
type Supervisor struct {
	mu   sync.RWMutex
	log  Logger
	bus  CANBus
	pins Pins

	inputs SampledInputs
	state  SupervisorState
	seq    *Sequencer

	updates        chan frameUpdate
	configRequests chan struct{}
	droppedFrames  uint64

	lastEmittedStatus byte
	settle            func(d time.Duration)
}

func NewSupervisor(config Config) *Supervisor {
	logger := config.Logger
	if logger == nil {
		logger = &StdLogger{logger: nopPrintf{}}
	}
	settle := config.Settle
	if settle == nil {
		settle = time.Sleep
	}
	return &Supervisor{
		log:            logger,
		bus:            config.Bus,
		pins:           config.Pins,
		seq:            NewSequencer(logger, config.Bus, config.Pins),
		updates:        make(chan frameUpdate, updateRingSize),
		configRequests: make(chan struct{}, 1),
		settle:         settle,
	}
}

type nopPrintf struct{}

func (nopPrintf) Printf(format string, v ...interface{}) {}

// Handle implements can.Handler. It is the receive path: decode the frame
// into an update record and enqueue it without blocking. Reconfiguration
// requests get their own single-slot channel so bursts coalesce.
func (s *Supervisor) Handle(frame can.Frame) {
	DebugCANFrame(s.log, "RX", frame.ID, frame.Data, frame.Length)

	u, ok := decodeFrame(frame, time.Now())
	if !ok {
		return
	}

	if u.kind == updateReconfigure {
		select {
		case s.configRequests <- struct{}{}:
		default:
		}
		return
	}

	select {
	case s.updates <- u:
	default:
		atomic.AddUint64(&s.droppedFrames, 1)
	}
}

// RequestIVTConfiguration queues an IVT configuration handshake. Used at
// boot and by IPC consumers; U2/U3 frame arrivals queue it internally.
func (s *Supervisor) RequestIVTConfiguration() {
	select {
	case s.configRequests <- struct{}{}:
	default:
	}
}

// Run drives the supervisor until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	evalTicker := time.NewTicker(EvalPeriod)
	defer evalTicker.Stop()
	beatTicker := time.NewTicker(HeartbeatPeriod)
	defer beatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case u := <-s.updates:
			s.mu.Lock()
			s.inputs.apply(u)
			s.mu.Unlock()

		case <-s.configRequests:
			s.configureIVT()

		case <-evalTicker.C:
			s.evalPass(time.Now())

		case <-beatTicker.C:
			s.beat()
		}
	}
}

// evalPass runs the safety evaluator and steps the sequencer. When the
// fault byte changes while an error is present, the heartbeat is emitted
// immediately instead of waiting for the next 1 Hz tick.
func (s *Supervisor) evalPass(now time.Time) {
	s.mu.Lock()
	Evaluate(&s.inputs, &s.state, now)
	s.seq.Step(now, &s.inputs, &s.state)
	s.updateLEDs()
	immediate := s.state.ErrorFlag && s.state.EncodeStatus()[0] != s.lastEmittedStatus
	s.mu.Unlock()

	if immediate {
		s.beat()
	}
}

// beat emits the heartbeat status frame and the contactor command frame.
func (s *Supervisor) beat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.state.EncodeStatus()
	s.debugStatus()

	frame := packFrame(HeartbeatFrameID, status[:])
	DebugCANFrame(s.log, "TX", frame.ID, frame.Data, frame.Length)
	if err := s.bus.Publish(frame); err != nil {
		s.log.Warn("Heartbeat send failed: %v", err)
	}
	// Latch the emitted fault byte so the same transition does not
	// retrigger the out-of-cadence path.
	s.lastEmittedStatus = status[0]

	s.seq.CommandContactors(&s.inputs, &s.state)
}

func (s *Supervisor) configureIVT() {
	s.log.Info("Configuring IVTs")
	if err := ConfigureIVT(s.bus, s.log, func() { s.settle(IvtConfigSettle) }); err != nil {
		s.log.Warn("IVT configuration incomplete: %v", err)
	}
}

func (s *Supervisor) updateLEDs() {
	setPin(s.log, s.pins.SafeLED, s.state.SafeToDrive)
	setPin(s.log, s.pins.ChargingLED, s.state.ChargingState)
}

func (s *Supervisor) debugStatus() {
	s.log.Debug("BMU status: over_current=%v under_voltage=%v over_voltage=%v under_temperature=%v over_temperature=%v safe_to_drive=%v charging=%v precharge=%v discharge=%v contactor=%v ivt_timeout=%v",
		s.state.OverCurrent, s.state.UnderVoltage, s.state.OverVoltage,
		s.state.UnderTemperature, s.state.OverTemperature, s.state.SafeToDrive,
		s.state.ChargingState, s.state.PrechargeState, s.state.DischargeState,
		s.state.ContactorState, s.state.IvtTimeout)
}

// Snapshot is a copy of the supervisor's observable state for IPC
// consumers.
type Snapshot struct {
	Inputs SampledInputs
	State  SupervisorState

	Contactor             ContactorState
	SolarEnabled          bool
	PrechargeTimedOut     bool
	DroppedFrames         uint64
	ContactorSendFailures int
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Inputs:                s.inputs,
		State:                 s.state,
		Contactor:             s.seq.State(),
		SolarEnabled:          s.seq.SolarEnabled(),
		PrechargeTimedOut:     s.seq.PrechargeTimedOut(),
		DroppedFrames:         atomic.LoadUint64(&s.droppedFrames),
		ContactorSendFailures: s.seq.ConsecutiveSendFailures(),
	}
}

// ActiveFaults merges the evaluator's fault bits with the sequencer's
// precharge timeout.
func (sn Snapshot) ActiveFaults() map[Fault]bool {
	faults := sn.State.ActiveFaults()
	if sn.PrechargeTimedOut {
		faults[FaultPrechargeTimeout] = true
	}
	return faults
}
