package bmu

import (
	"errors"
	"testing"

	"github.com/brutella/can"
)

func TestConfigureIVTSequence(t *testing.T) {
	bus := &fakeBus{}
	settles := 0

	err := ConfigureIVT(bus, &testLogger{}, func() { settles++ })
	if err != nil {
		t.Fatalf("ConfigureIVT error: %v", err)
	}

	if len(bus.frames) != 10 {
		t.Fatalf("expected 10 configuration frames, got %d", len(bus.frames))
	}
	if settles != 10 {
		t.Errorf("expected a settle after each command, got %d", settles)
	}

	for i, f := range bus.frames {
		if f.ID != IvtCommandFrameID {
			t.Errorf("frame %d: expected ID 0x411, got 0x%03X", i, f.ID)
		}
	}

	// Stop first, start last.
	stop := bus.frames[0]
	if stop.Length != 5 || stop.Data[0] != 0x34 || stop.Data[1] != 0x00 {
		t.Errorf("first frame is not the stop command: % X", stop.Data[:stop.Length])
	}
	start := bus.frames[9]
	if start.Length != 5 || start.Data[0] != 0x34 || start.Data[1] != 0x01 || start.Data[2] != 0x01 {
		t.Errorf("last frame is not the start command: % X", start.Data[:start.Length])
	}

	// The eight channel setups in between, in channel order. U2/U3 are
	// programmed off (trigger byte 0x00).
	expected := []struct {
		channel byte
		trigger byte
	}{
		{0x20, 0x02},
		{0x21, 0x02},
		{0x22, 0x00},
		{0x23, 0x00},
		{0x24, 0x02},
		{0x25, 0x02},
		{0x26, 0x02},
		{0x27, 0x02},
	}
	for i, want := range expected {
		f := bus.frames[1+i]
		if f.Length != 4 {
			t.Errorf("setup %d: expected length 4, got %d", i, f.Length)
		}
		if f.Data[0] != want.channel || f.Data[1] != want.trigger {
			t.Errorf("setup %d: expected % X, got % X",
				i, []byte{want.channel, want.trigger}, f.Data[:2])
		}
	}
}

func TestConfigureIVTReportsFailures(t *testing.T) {
	bus := &fakeBus{err: errors.New("tx timeout")}

	err := ConfigureIVT(bus, &testLogger{}, func() {})
	if err == nil {
		t.Fatal("expected an error when every command fails")
	}
}

// Reissuing the configuration is idempotent on the wire: the same ten
// frames in the same order.
func TestConfigureIVTIdempotent(t *testing.T) {
	bus := &fakeBus{}
	noSettle := func() {}

	if err := ConfigureIVT(bus, &testLogger{}, noSettle); err != nil {
		t.Fatal(err)
	}
	first := append([]byte(nil), flattenFrames(bus.frames)...)

	if err := ConfigureIVT(bus, &testLogger{}, noSettle); err != nil {
		t.Fatal(err)
	}
	second := flattenFrames(bus.frames[10:])

	if string(first) != string(second) {
		t.Error("reissued configuration differs from the first run")
	}
}

func flattenFrames(frames []can.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, byte(f.ID>>8), byte(f.ID), f.Length)
		out = append(out, f.Data[:f.Length]...)
	}
	return out
}
