package bmu

import (
	"testing"
	"time"

	"github.com/brutella/can"
)

// testLogger implements Logger for testing
type testLogger struct{}

func (l *testLogger) Printf(format string, v ...interface{})                          {}
func (l *testLogger) Debug(format string, v ...interface{})                           {}
func (l *testLogger) Info(format string, v ...interface{})                            {}
func (l *testLogger) Warn(format string, v ...interface{})                            {}
func (l *testLogger) Error(format string, v ...interface{})                           {}
func (l *testLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {}

func makeCANFrame(id uint32, data []byte) can.Frame {
	f := can.Frame{
		ID:     id,
		Length: uint8(len(data)),
	}
	copy(f.Data[:], data)
	return f
}

var testTime = time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)

// ivtFrame builds an IVT measurement frame carrying value in bytes 2..5,
// MSB first.
func ivtFrame(id uint32, value int32) can.Frame {
	data := make([]byte, 6)
	data[2] = byte(uint32(value) >> 24)
	data[3] = byte(uint32(value) >> 16)
	data[4] = byte(uint32(value) >> 8)
	data[5] = byte(uint32(value))
	return makeCANFrame(id, data)
}

func decodeAndApply(t *testing.T, s *SampledInputs, frame can.Frame, now time.Time) {
	t.Helper()
	u, ok := decodeFrame(frame, now)
	if !ok {
		t.Fatalf("frame 0x%03X did not decode", frame.ID)
	}
	s.apply(u)
}

func TestDecodeFrontCurrent(t *testing.T) {
	var s SampledInputs
	decodeAndApply(t, &s, ivtFrame(0x520, -5000), testTime)

	if got := s.Ivt[PackFront].Current.Value; got != -5000 {
		t.Errorf("front current: expected -5000, got %d", got)
	}
	if !s.LastCurrentUpdate.Equal(testTime) {
		t.Errorf("current frame should reset the freshness timestamp")
	}
}

func TestDecodeRearCurrentResetsFreshness(t *testing.T) {
	var s SampledInputs
	decodeAndApply(t, &s, ivtFrame(0x530, 250), testTime)

	if got := s.Ivt[PackRear].Current.Value; got != 250 {
		t.Errorf("rear current: expected 250, got %d", got)
	}
	if !s.LastCurrentUpdate.Equal(testTime) {
		t.Errorf("rear current frame should reset the freshness timestamp")
	}
}

func TestDecodeIvtChannels(t *testing.T) {
	tests := []struct {
		id    uint32
		pack  Pack
		value int32
		get   func(s *IvtSample) Reading
	}{
		{0x521, PackFront, 52000, func(s *IvtSample) Reading { return s.Voltage1 }},
		{0x524, PackFront, 253, func(s *IvtSample) Reading { return s.Temperature }},
		{0x525, PackFront, 1200, func(s *IvtSample) Reading { return s.Power }},
		{0x526, PackFront, -40, func(s *IvtSample) Reading { return s.Charge }},
		{0x527, PackFront, 900, func(s *IvtSample) Reading { return s.Energy }},
		{0x531, PackRear, 51800, func(s *IvtSample) Reading { return s.Voltage1 }},
		{0x534, PackRear, 249, func(s *IvtSample) Reading { return s.Temperature }},
		{0x537, PackRear, 895, func(s *IvtSample) Reading { return s.Energy }},
	}

	for _, tt := range tests {
		var s SampledInputs
		decodeAndApply(t, &s, ivtFrame(tt.id, tt.value), testTime)

		r := tt.get(&s.Ivt[tt.pack])
		if r.Value != tt.value {
			t.Errorf("0x%03X: expected %d, got %d", tt.id, tt.value, r.Value)
		}
		if !r.At.Equal(testTime) {
			t.Errorf("0x%03X: reading not timestamped", tt.id)
		}
		if !s.LastCurrentUpdate.IsZero() {
			t.Errorf("0x%03X: only current frames may reset freshness", tt.id)
		}
	}
}

func TestDecodeVoltage23TriggersReconfigure(t *testing.T) {
	for _, id := range []uint32{0x522, 0x523, 0x532, 0x533} {
		u, ok := decodeFrame(ivtFrame(id, 0), testTime)
		if !ok {
			t.Fatalf("0x%03X did not decode", id)
		}
		if u.kind != updateReconfigure {
			t.Errorf("0x%03X: expected reconfigure request, got kind %d", id, u.kind)
		}
	}
}

func TestDecodeCellVoltages(t *testing.T) {
	// Frame 0x362 carries cells 8..11, little-endian u16 pairs.
	data := []byte{0x10, 0x27, 0x11, 0x27, 0x12, 0x27, 0x13, 0x27}
	var s SampledInputs
	decodeAndApply(t, &s, makeCANFrame(0x362, data), testTime)

	for i := 0; i < 4; i++ {
		expected := uint16(0x2710 + i)
		if s.CellVoltages[8+i] != expected {
			t.Errorf("cell %d: expected %d, got %d", 8+i, expected, s.CellVoltages[8+i])
		}
	}
	if s.CellVoltages[0] != 0 || s.CellVoltages[12] != 0 {
		t.Error("cells outside the frame's window must not change")
	}
}

func TestDecodeCellVoltageBaseAndTop(t *testing.T) {
	data := []byte{0xA0, 0x0F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	var s SampledInputs
	decodeAndApply(t, &s, makeCANFrame(0x360, data), testTime)
	if s.CellVoltages[0] != 0x0FA0 {
		t.Errorf("cell 0: expected 0x0FA0, got 0x%04X", s.CellVoltages[0])
	}

	data = []byte{0, 0, 0, 0, 0, 0, 0xB0, 0x0F}
	decodeAndApply(t, &s, makeCANFrame(0x367, data), testTime)
	if s.CellVoltages[31] != 0x0FB0 {
		t.Errorf("cell 31: expected 0x0FB0, got 0x%04X", s.CellVoltages[31])
	}
}

func TestDecodeCellTemperatureRows(t *testing.T) {
	row0 := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	row1 := []byte{11, 12, 13, 14, 15, 16, 17, 18}

	var s SampledInputs
	decodeAndApply(t, &s, makeCANFrame(0x550, row0), testTime)
	decodeAndApply(t, &s, makeCANFrame(0x562, row1), testTime)

	for i := 0; i < 8; i++ {
		if s.CellTemperatures[0][i] != row0[i] {
			t.Errorf("row 0 byte %d: expected %d, got %d", i, row0[i], s.CellTemperatures[0][i])
		}
		if s.CellTemperatures[1][i] != row1[i] {
			t.Errorf("row 1 byte %d: expected %d, got %d", i, row1[i], s.CellTemperatures[1][i])
		}
	}
}

func TestDecodeDriverControls(t *testing.T) {
	var s SampledInputs

	decodeAndApply(t, &s, makeCANFrame(0x500, []byte{0x01}), testTime)
	if !s.Demand.Ignition || s.Demand.PreviousIgnition {
		t.Errorf("expected rising edge: ignition=%v previous=%v", s.Demand.Ignition, s.Demand.PreviousIgnition)
	}

	// Repeating the same demand must not disturb the edge memory.
	decodeAndApply(t, &s, makeCANFrame(0x500, []byte{0x01}), testTime)
	if !s.Demand.Ignition || s.Demand.PreviousIgnition {
		t.Error("repeated demand changed edge state")
	}

	decodeAndApply(t, &s, makeCANFrame(0x500, []byte{0x00}), testTime)
	if s.Demand.Ignition || !s.Demand.PreviousIgnition {
		t.Errorf("expected falling edge: ignition=%v previous=%v", s.Demand.Ignition, s.Demand.PreviousIgnition)
	}

	decodeAndApply(t, &s, makeCANFrame(0x500, []byte{0x08}), testTime)
	if !s.Demand.Solar {
		t.Error("solar demand bit not decoded")
	}
	if s.Demand.Ignition {
		t.Error("solar-only frame must not set ignition")
	}
}

func TestDecodeUnknownID(t *testing.T) {
	if _, ok := decodeFrame(makeCANFrame(0x123, make([]byte, 8)), testTime); ok {
		t.Error("unknown ID should be discarded")
	}
}

func TestDecodeShortFrames(t *testing.T) {
	tests := []struct {
		name string
		f    can.Frame
	}{
		{"short ivt", makeCANFrame(0x520, make([]byte, 4))},
		{"short cell voltages", makeCANFrame(0x360, make([]byte, 6))},
		{"empty driver controls", makeCANFrame(0x500, nil)},
		{"short temperature row", makeCANFrame(0x550, make([]byte, 7))},
	}
	for _, tt := range tests {
		if _, ok := decodeFrame(tt.f, testTime); ok {
			t.Errorf("%s should be discarded", tt.name)
		}
	}
}

func TestIvtScalarNegative(t *testing.T) {
	var data [8]byte
	data[2], data[3], data[4], data[5] = 0xFF, 0xFE, 0x79, 0x60 // -100000
	if got := ivtScalar(data); got != -100000 {
		t.Errorf("expected -100000, got %d", got)
	}
}
