package bmu

import (
	"encoding/binary"
	"time"

	"github.com/brutella/can"
)

// CAN frame IDs.
const (
	// Outbound
	HeartbeatFrameID        = 0x400
	ContactorCommandFrameID = 0x34F
	IvtCommandFrameID       = 0x411

	// Inbound
	DriverControlsFrameID  = 0x500
	CellVoltagesBaseID     = 0x360
	CellVoltageFrameCount  = 8
	FrontIvtBaseID         = 0x520
	RearIvtBaseID          = 0x530
	CellTemperaturesRow0ID = 0x550
	CellTemperaturesRow1ID = 0x562
)

// IVT channel offsets within a pack's ID block.
const (
	ivtChannelCurrent     = 0x0
	ivtChannelVoltage1    = 0x1
	ivtChannelVoltage2    = 0x2
	ivtChannelVoltage3    = 0x3
	ivtChannelTemperature = 0x4
	ivtChannelPower       = 0x5
	ivtChannelCharge      = 0x6
	ivtChannelEnergy      = 0x7
)

type updateKind int

const (
	updateIvtScalar updateKind = iota
	updateCellVoltages
	updateCellTemperatureRow
	updateDriverControls
	updateReconfigure
)

// frameUpdate is one decoded inbound frame. The receive goroutine produces
// these; the supervisor loop applies them to SampledInputs.
type frameUpdate struct {
	kind    updateKind
	at      time.Time
	pack    Pack
	channel int
	value   int32

	cellBase int
	cells    [4]uint16

	row      int
	tempRow  [8]uint8

	ignition bool
	solar    bool
}

// ivtScalar decodes an IVT measurement: a signed 32-bit value carried in
// bytes 2..5, MSB first.
func ivtScalar(data [8]byte) int32 {
	return int32(binary.BigEndian.Uint32(data[2:6]))
}

// decodeFrame maps an inbound frame to an update record. Unknown IDs and
// truncated frames are discarded.
func decodeFrame(frame can.Frame, now time.Time) (frameUpdate, bool) {
	switch {
	case frame.ID >= CellVoltagesBaseID && frame.ID < CellVoltagesBaseID+CellVoltageFrameCount:
		if frame.Length < 8 {
			return frameUpdate{}, false
		}
		u := frameUpdate{
			kind:     updateCellVoltages,
			at:       now,
			cellBase: int(frame.ID-CellVoltagesBaseID) * 4,
		}
		for i := 0; i < 4; i++ {
			u.cells[i] = binary.LittleEndian.Uint16(frame.Data[i*2 : i*2+2])
		}
		return u, true

	case frame.ID == DriverControlsFrameID:
		if frame.Length < 1 {
			return frameUpdate{}, false
		}
		return frameUpdate{
			kind:     updateDriverControls,
			at:       now,
			ignition: frame.Data[0]&0x01 != 0,
			solar:    frame.Data[0]&0x08 != 0,
		}, true

	case frame.ID >= FrontIvtBaseID && frame.ID < FrontIvtBaseID+8:
		return decodeIvtFrame(frame, PackFront, int(frame.ID-FrontIvtBaseID), now)

	case frame.ID >= RearIvtBaseID && frame.ID < RearIvtBaseID+8:
		return decodeIvtFrame(frame, PackRear, int(frame.ID-RearIvtBaseID), now)

	case frame.ID == CellTemperaturesRow0ID, frame.ID == CellTemperaturesRow1ID:
		if frame.Length < 8 {
			return frameUpdate{}, false
		}
		u := frameUpdate{kind: updateCellTemperatureRow, at: now}
		if frame.ID == CellTemperaturesRow1ID {
			u.row = 1
		}
		copy(u.tempRow[:], frame.Data[:])
		return u, true
	}

	return frameUpdate{}, false
}

func decodeIvtFrame(frame can.Frame, pack Pack, channel int, now time.Time) (frameUpdate, bool) {
	// The IVTs are configured not to report U2/U3; seeing one means the
	// transducer rebooted and lost its configuration.
	if channel == ivtChannelVoltage2 || channel == ivtChannelVoltage3 {
		return frameUpdate{kind: updateReconfigure, at: now, pack: pack, channel: channel}, true
	}
	if frame.Length < 6 {
		return frameUpdate{}, false
	}
	return frameUpdate{
		kind:    updateIvtScalar,
		at:      now,
		pack:    pack,
		channel: channel,
		value:   ivtScalar(frame.Data),
	}, true
}

// apply folds one update record into the sampled state.
func (s *SampledInputs) apply(u frameUpdate) {
	switch u.kind {
	case updateIvtScalar:
		sample := &s.Ivt[u.pack]
		r := Reading{Value: u.value, At: u.at}
		switch u.channel {
		case ivtChannelCurrent:
			sample.Current = r
			// The current frame bookends the freshness window for
			// both packs.
			s.LastCurrentUpdate = u.at
		case ivtChannelVoltage1:
			sample.Voltage1 = r
		case ivtChannelTemperature:
			sample.Temperature = r
		case ivtChannelPower:
			sample.Power = r
		case ivtChannelCharge:
			sample.Charge = r
		case ivtChannelEnergy:
			sample.Energy = r
		}

	case updateCellVoltages:
		for i, v := range u.cells {
			idx := u.cellBase + i
			if idx < len(s.CellVoltages) {
				s.CellVoltages[idx] = v
			}
		}

	case updateCellTemperatureRow:
		s.CellTemperatures[u.row] = u.tempRow

	case updateDriverControls:
		if s.Demand.Ignition != u.ignition {
			s.Demand.PreviousIgnition = s.Demand.Ignition
			s.Demand.Ignition = u.ignition
		}
		s.Demand.Solar = u.solar
	}
}
