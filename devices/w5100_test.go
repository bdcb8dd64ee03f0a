package devices_test

import (
	"testing"

	"example.com/uthernet2/bus"
	"example.com/uthernet2/config"
	"example.com/uthernet2/devices"
	"example.com/uthernet2/internal/devlog"
)

func newTestCard() *devices.Uthernet2 {
	return devices.NewUthernet2(3, config.Defaults(), nil, devlog.New("test: ", false))
}

func romRead(t *testing.T, u *devices.Uthernet2, ploc int) int {
	t.Helper()
	return u.Handle(bus.Access{Loc: 0xC300 + ploc, Val: -1, PLoc: ploc, PSW: -1})
}

func swRead(t *testing.T, u *devices.Uthernet2, psw int) int {
	t.Helper()
	return u.Handle(bus.Access{Loc: 0xC0B0 + psw, Val: -1, PLoc: -1, PSW: psw})
}

func swWrite(t *testing.T, u *devices.Uthernet2, psw int, val byte) {
	t.Helper()
	u.Handle(bus.Access{Loc: 0xC0B0 + psw, Val: int(val), PLoc: -1, PSW: psw})
}

func TestDetectionProbe(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if got := romRead(t, u, 0x05); got != 0x38 {
		t.Errorf("rom[0x05] = 0x%02x, want 0x38", got)
	}
	if got := romRead(t, u, 0x07); got != 0x18 {
		t.Errorf("rom[0x07] = 0x%02x, want 0x18", got)
	}
	if got := romRead(t, u, 0x00); got != 0x00 {
		t.Errorf("rom[0x00] = 0x%02x, want 0x00", got)
	}
	if got := romRead(t, u, 0xFF); got != 0x00 {
		t.Errorf("rom[0xFF] = 0x%02x, want 0x00", got)
	}
}

// soft-switch offsets for Mode/AddrHi/AddrLo/Data, mirroring the
// private layout in w5100.go's handleSoftSwitch.
const (
	swMode   = 4
	swAddrHi = 5
	swAddrLo = 6
	swData   = 7
)

func TestIndirectAutoIncrement(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	swWrite(t, u, swMode, 0x02) // MR bit 1: auto-increment on
	swWrite(t, u, swAddrHi, 0x00)
	swWrite(t, u, swAddrLo, 0x04)
	swWrite(t, u, swData, 0xAA)
	swWrite(t, u, swData, 0xBB)

	swWrite(t, u, swAddrHi, 0x00)
	swWrite(t, u, swAddrLo, 0x04)
	if got := swRead(t, u, swData); got != 0xAA {
		t.Errorf("first read = 0x%02x, want 0xAA", got)
	}
	if got := swRead(t, u, swData); got != 0xBB {
		t.Errorf("second read = 0x%02x, want 0xBB", got)
	}
}

func TestResetTriggerClearsModeRegister(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	swWrite(t, u, swMode, 0x80) // reset trigger
	if got := swRead(t, u, swMode); got != 0x00 {
		t.Errorf("mode after reset = 0x%02x, want 0x00", got)
	}
}

// TestResetSocketsHaveDefaultStatusAndPointers covers §8's post-reset
// invariant: every socket's status is 0x00 (CLOSED) and its TX/RX
// pointers equal that socket's bank base.
func TestResetSocketsHaveDefaultStatusAndPointers(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	swWrite(t, u, swMode, 0x80) // reset trigger

	readSocketReg := func(n, off int) int {
		swWrite(t, u, swMode, 0x00)
		addr := uint16(0x0400 + n*0x100 + off)
		swWrite(t, u, swAddrHi, byte(addr>>8))
		swWrite(t, u, swAddrLo, byte(addr))
		return swRead(t, u, swData)
	}
	readSocketReg16 := func(n, off int) uint16 {
		swWrite(t, u, swMode, 0x02)
		addr := uint16(0x0400 + n*0x100 + off)
		swWrite(t, u, swAddrHi, byte(addr>>8))
		swWrite(t, u, swAddrLo, byte(addr))
		hi := swRead(t, u, swData)
		lo := swRead(t, u, swData)
		return uint16(hi)<<8 | uint16(lo)
	}

	for n := 0; n < 4; n++ {
		const sSR, sTXWR0, sTXRD0, sRXRD0 = 0x03, 0x24, 0x22, 0x28
		if got := readSocketReg(n, sSR); got != 0x00 {
			t.Errorf("socket %d: Sn_SR after reset = 0x%02x, want 0x00", n, got)
		}
		txBank := uint16(0x4000 + n*0x800)
		rxBank := uint16(0x6000 + n*0x800)
		if got := readSocketReg16(n, sTXWR0); got != txBank {
			t.Errorf("socket %d: Sn_TX_WR after reset = 0x%04x, want 0x%04x", n, got, txBank)
		}
		if got := readSocketReg16(n, sTXRD0); got != txBank {
			t.Errorf("socket %d: Sn_TX_RD after reset = 0x%04x, want 0x%04x", n, got, txBank)
		}
		if got := readSocketReg16(n, sRXRD0); got != rxBank {
			t.Errorf("socket %d: Sn_RX_RD after reset = 0x%04x, want 0x%04x", n, got, rxBank)
		}
	}
}

// TestCommandRegisterReadsZeroAfterWrite covers §8's "reading Sn_CR
// immediately after any write returns 0" invariant: the card clears
// the command byte once it has dispatched it.
func TestCommandRegisterReadsZeroAfterWrite(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	const sCR = 0x01
	addr := uint16(0x0400 + sCR)
	swWrite(t, u, swMode, 0x00)
	swWrite(t, u, swAddrHi, byte(addr>>8))
	swWrite(t, u, swAddrLo, byte(addr))
	swWrite(t, u, swData, 0x01) // OPEN, with Sn_MR still CLOSED: harmless no-op

	swWrite(t, u, swAddrHi, byte(addr>>8))
	swWrite(t, u, swAddrLo, byte(addr))
	if got := swRead(t, u, swData); got != 0x00 {
		t.Errorf("Sn_CR readback after write = 0x%02x, want 0x00", got)
	}
}

// TestTXFreeSizeInvariant covers §8's Sn_TX_FSR law:
// Sn_TX_FSR + ((Sn_TX_WR - Sn_TX_RD) mod 2048) = 2048.
func TestTXFreeSizeInvariant(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	const sTXWR0, sTXFSR0 = 0x24, 0x20
	writeSocketReg16 := func(off int, v uint16) {
		swWrite(t, u, swMode, 0x02)
		addr := uint16(0x0400 + off)
		swWrite(t, u, swAddrHi, byte(addr>>8))
		swWrite(t, u, swAddrLo, byte(addr))
		swWrite(t, u, swData, byte(v>>8))
		swWrite(t, u, swData, byte(v))
	}
	readSocketReg16 := func(off int) uint16 {
		swWrite(t, u, swMode, 0x02)
		addr := uint16(0x0400 + off)
		swWrite(t, u, swAddrHi, byte(addr>>8))
		swWrite(t, u, swAddrLo, byte(addr))
		hi := swRead(t, u, swData)
		lo := swRead(t, u, swData)
		return uint16(hi)<<8 | uint16(lo)
	}

	writeSocketReg16(sTXWR0, 500)
	fsr := readSocketReg16(sTXFSR0)
	used := uint16(500) % 2048
	if uint32(fsr)+uint32(used) != 2048 {
		t.Errorf("Sn_TX_FSR (%d) + used (%d) = %d, want 2048", fsr, used, uint32(fsr)+uint32(used))
	}
}

func TestAutoIncrementSequenceWrapsAt0x8000(t *testing.T) {
	u := newTestCard()
	if err := u.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	swWrite(t, u, swMode, 0x02)
	swWrite(t, u, swAddrHi, 0xFF)
	swWrite(t, u, swAddrLo, 0xFE)

	for i := 0; i < 4; i++ {
		swWrite(t, u, swData, byte(i))
	}

	hi := swRead(t, u, swAddrHi)
	lo := swRead(t, u, swAddrLo)
	got := uint16(hi)<<8 | uint16(lo)
	want := uint16(0x0002) // (0xFFFE + 4) mod 0x8000
	if got != want {
		t.Errorf("addr_ptr after wrap = 0x%04x, want 0x%04x", got, want)
	}
}
