package bmu

import (
	"fmt"

	"github.com/brutella/can"
)

// ivtCommand is one configuration word for the IVT command ID. Both IVTs
// listen on 0x411, so a single sequence configures front and rear together.
type ivtCommand struct {
	name string
	data []byte
}

// ivtConfigSequence puts the IVTs into the reporting set the decoder
// expects: stop, current, U1, U2 off, U3 off, temperature, power, charge,
// energy, start.
var ivtConfigSequence = []ivtCommand{
	{"stop", []byte{0x34, 0x00, 0x00, 0x00, 0x00}},
	{"current", []byte{0x20, 0x02, 0x00, 0x19}},
	{"voltage1", []byte{0x21, 0x02, 0x03, 0xE8}},
	{"voltage2", []byte{0x22, 0x00, 0x03, 0xE8}},
	{"voltage3", []byte{0x23, 0x00, 0x03, 0xE8}},
	{"temperature", []byte{0x24, 0x02, 0x03, 0xE8}},
	{"power", []byte{0x25, 0x02, 0x03, 0xE8}},
	{"charge", []byte{0x26, 0x02, 0x03, 0xE8}},
	{"energy", []byte{0x27, 0x02, 0x03, 0xE8}},
	{"start", []byte{0x34, 0x01, 0x01, 0x00, 0x00}},
}

// ConfigureIVT runs the configuration handshake, with a settle delay after
// each command. The sequence is idempotent: rerunning it leaves the IVTs in
// the same operating configuration.
func ConfigureIVT(bus CANBus, logger Logger, settle func()) error {
	failed := 0
	for _, cmd := range ivtConfigSequence {
		frame := packFrame(IvtCommandFrameID, cmd.data)
		DebugCANFrame(logger, "TX", frame.ID, frame.Data, frame.Length)
		if err := bus.Publish(frame); err != nil {
			failed++
			if logger != nil {
				logger.Warn("IVT %s command failed: %v", cmd.name, err)
			}
		}
		settle()
	}
	if failed > 0 {
		return fmt.Errorf("ivt configuration: %d of %d commands failed", failed, len(ivtConfigSequence))
	}
	return nil
}

// packFrame creates a CAN frame with the given ID and data.
func packFrame(id uint32, data []byte) can.Frame {
	var frameData [8]byte
	copy(frameData[:], data)
	return can.Frame{
		ID:     id,
		Length: uint8(len(data)),
		Flags:  0,
		Data:   frameData,
	}
}

// boolToByte converts a bool to its wire representation.
func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
