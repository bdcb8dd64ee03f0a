package devices_test

import (
	"testing"

	"example.com/uthernet2/bus"
	"example.com/uthernet2/devices"
	"example.com/uthernet2/internal/devlog"
)

func newTestMouse(t *testing.T) *devices.AppleMouse {
	t.Helper()
	m := devices.NewAppleMouse(4, devlog.New("mouse: ", false))
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m
}

func mouseRead(m *devices.AppleMouse, psw int) int {
	return m.Handle(bus.Access{Val: -1, PLoc: -1, PSW: psw})
}

func mouseWrite(m *devices.AppleMouse, psw int, val byte) {
	m.Handle(bus.Access{Val: int(val), PLoc: -1, PSW: psw})
}

const (
	piaORA = 0
	piaCRA = 1
	piaORB = 2
	piaCRB = 3
)

func TestAppleMouse_SynthesizedROMDetectionBytes(t *testing.T) {
	m := newTestMouse(t)
	read := func(ploc int) int {
		return m.Handle(bus.Access{Val: -1, PLoc: ploc, PSW: -1})
	}
	if got := read(0x05); got != 0x38 {
		t.Errorf("rom[0x05] = 0x%02x, want 0x38", got)
	}
	if got := read(0x07); got != 0x18 {
		t.Errorf("rom[0x07] = 0x%02x, want 0x18", got)
	}
	if got := read(0x0B); got != 0x01 {
		t.Errorf("rom[0x0B] = 0x%02x, want 0x01", got)
	}
	if got := read(0xFB); got != 0xD6 {
		t.Errorf("rom[0xFB] = 0x%02x, want 0xD6", got)
	}
	if got := read(0x12); got != 0x60 {
		t.Errorf("rom[0x12] = 0x%02x, want RTS 0x60", got)
	}
}

func TestAppleMouse_QuadratureDrainsTowardZero(t *testing.T) {
	m := newTestMouse(t)
	mouseWrite(m, piaCRA, 0x04) // CRA bit 2: ORA is the data register
	m.SetPosition(5, 0)

	if v := mouseRead(m, piaORA); v&0x02 == 0 {
		t.Errorf("expected X-right bit set while draining rightward movement, got 0x%02x", v)
	}

	x, y, _ := m.State()
	if x != 5 || y != 0 {
		t.Errorf("State() = (%d,%d), want (5,0)", x, y)
	}

	// One unit of movement was already consumed by the read above;
	// drain the remaining four.
	for i := 0; i < 4; i++ {
		mouseRead(m, piaORA)
	}
	v := mouseRead(m, piaORA)
	if v&0x01 != 0 || v&0x02 != 0 {
		t.Errorf("after full drain, tick/direction bits should be 0, got 0x%02x", v)
	}
}

func TestAppleMouse_ButtonActiveLow(t *testing.T) {
	m := newTestMouse(t)
	mouseWrite(m, piaCRA, 0x04)

	m.SetButton(true) // pressed
	if v := mouseRead(m, piaORA); v&0x80 != 0 {
		t.Errorf("button bit should be clear while pressed, got 0x%02x", v)
	}

	m.SetButton(false) // released
	if v := mouseRead(m, piaORA); v&0x80 == 0 {
		t.Errorf("button bit should be set while released, got 0x%02x", v)
	}
}

func TestAppleMouse_ROMBankSelectFollowsORBLowBits(t *testing.T) {
	m := newTestMouse(t)
	mouseWrite(m, piaCRB, 0x04) // ORB is the data register
	mouseWrite(m, piaORB, 0x03)

	got := m.Handle(bus.Access{Val: -1, PLoc: 0x05, PSW: -1})
	if got != 0x38 {
		t.Errorf("bank 3 rom[0x05] = 0x%02x, want 0x38 (synthesized rom replicates every bank)", got)
	}
}

func TestAppleMouse_DDRGatingByControlRegister(t *testing.T) {
	m := newTestMouse(t)
	// CRA bit 2 clear: offset 0 addresses DDRA, not ORA.
	mouseWrite(m, piaCRA, 0x00)
	mouseWrite(m, piaORA, 0xAA)
	if got := mouseRead(m, piaORA); got != 0xAA {
		t.Errorf("DDRA readback = 0x%02x, want 0xAA", got)
	}
}
