// Updated devices/w5100.go
package devices

import (
	"example.com/uthernet2/bus"
	"example.com/uthernet2/config"
	"example.com/uthernet2/devices/virtualnet"
	"example.com/uthernet2/internal/devlog"
	"example.com/uthernet2/metrics"
)

// Uthernet2 emulates a WIZnet W5100-based Ethernet card, synthesizing
// a complete virtual network (ARP, DHCP, a single TCP termination) on
// the other side of the register file rather than forwarding frames
// to a real host NIC.
type Uthernet2 struct {
	slot int
	cfg  config.VirtualNetwork
	log  *devlog.Logger
	met  *metrics.Registry

	memory  [memSize]byte
	addrPtr uint16
	mode    byte

	sockets [numSockets]*socketState

	dhcp   virtualnet.DHCPSession
	vtcp   *virtualnet.TCPSession
	dialer virtualnet.HostDialer
}

// NewUthernet2 creates the card. cfg may be config.Defaults() or a
// config.Load result; met may be nil, in which case the card records
// into a private registry of its own.
func NewUthernet2(slot int, cfg config.VirtualNetwork, met *metrics.Registry, log *devlog.Logger) *Uthernet2 {
	if met == nil {
		met = metrics.NewRegistry()
	}
	u := &Uthernet2{slot: slot, cfg: cfg, met: met, log: log, dialer: virtualnet.NewHostDialer()}
	for n := range u.sockets {
		u.sockets[n] = newSocketState(n)
	}
	return u
}

// Init implements bus.Device.
func (u *Uthernet2) Init() error {
	u.reset()
	return nil
}

// Handle implements bus.Device.
func (u *Uthernet2) Handle(a bus.Access) int {
	if a.IsROM() {
		return u.handleROM(a.PLoc)
	}
	return u.handleSoftSwitch(a.PSW, a.Val)
}

// handleROM answers detection probes (§4.2): only two offsets carry
// identification bytes, everything else reads as zero.
func (u *Uthernet2) handleROM(ploc int) int {
	switch ploc {
	case romIDOffset1:
		return romIDByte1
	case romIDOffset2:
		return romIDByte2
	default:
		return 0
	}
}

// handleSoftSwitch implements the four Mode/AddrHi/AddrLo/Data
// soft-switches at offsets 4..7 (§4.2).
func (u *Uthernet2) handleSoftSwitch(psw, val int) int {
	const (
		swMode   = 4
		swAddrHi = 5
		swAddrLo = 6
		swData   = 7
	)
	switch psw {
	case swMode:
		if val < 0 {
			return int(u.mode)
		}
		u.writeMode(byte(val))
		return 0
	case swAddrHi:
		if val < 0 {
			return int(u.addrPtr >> 8)
		}
		u.addrPtr = (u.addrPtr & 0x00FF) | (uint16(val) << 8)
		return 0
	case swAddrLo:
		if val < 0 {
			return int(u.addrPtr & 0x00FF)
		}
		u.addrPtr = (u.addrPtr & 0xFF00) | uint16(val)
		return 0
	case swData:
		if val < 0 {
			b := u.busRead(u.addrPtr)
			u.bumpAddrPtr()
			return int(b)
		}
		u.busWrite(u.addrPtr, byte(val))
		u.bumpAddrPtr()
		return 0
	default:
		return 0
	}
}

func (u *Uthernet2) bumpAddrPtr() {
	if u.mode&modeAutoInc != 0 {
		u.addrPtr = (u.addrPtr + 1) & 0x7FFF // wraps within the 32 KiB image
	}
}

// writeMode handles writes to the Mode register, including the reset
// trigger (§4.2).
func (u *Uthernet2) writeMode(val byte) {
	if val&modeReset != 0 {
		u.reset()
		val &^= modeReset
	}
	u.mode = val
}

// busRead implements §4.2's bus-read path.
func (u *Uthernet2) busRead(addr uint16) byte {
	a := int(addr) & 0xFFFF
	if a >= 0x8000 {
		return 0
	}
	if a >= socketBase && a < socketBase+numSockets*socketStride {
		return u.socketRegRead(a)
	}
	if a >= rxBankBase && a < rxBankBase+numSockets*bankPerSock {
		n := (a - rxBankBase) / bankPerSock
		off := (a - rxBankBase) % bankPerSock
		return u.sockets[n].rxStaging.At(off)
	}
	return u.memory[a]
}

// busWrite implements §4.2's bus-write path.
func (u *Uthernet2) busWrite(addr uint16, b byte) {
	a := int(addr) & 0xFFFF
	if a >= 0x8000 {
		return
	}
	if a == regMode {
		u.writeMode(b)
		return
	}
	if a >= socketBase && a < socketBase+numSockets*socketStride {
		n := (a - socketBase) / socketStride
		off := (a - socketBase) % socketStride
		if off == sCR {
			u.executeCommand(n, b)
			u.memory[a] = 0 // command register always reads 0 after the write (§3 invariant)
			return
		}
		u.memory[a] = b
		return
	}
	u.memory[a] = b
}

// socketRegRead services a read inside a socket's register page,
// polling first as §4.2/§5 require.
func (u *Uthernet2) socketRegRead(addr int) byte {
	n := (addr - socketBase) / socketStride
	off := (addr - socketBase) % socketStride
	sock := u.sockets[n]

	u.pollSocket(n)
	if n == 0 && sock.macraw {
		u.pollVirtualTCP()
	}

	switch off {
	case sTXFSR0:
		return byte(u.txFreeSize(n) >> 8)
	case sTXFSR1:
		return byte(u.txFreeSize(n))
	case sRXRSR0:
		return byte(sock.rxStaging.Len() >> 8)
	case sRXRSR1:
		return byte(sock.rxStaging.Len())
	default:
		return u.memory[addr]
	}
}

// txFreeSize computes Sn_TX_FSR on demand (§3 invariant: it is
// computed, not stored).
func (u *Uthernet2) txFreeSize(n int) uint16 {
	base := socketRegBase(n)
	wr := uint16(u.memory[base+sTXWR0])<<8 | uint16(u.memory[base+sTXWR1])
	rd := uint16(u.memory[base+sTXRD0])<<8 | uint16(u.memory[base+sTXRD1])
	used := (wr - rd) % bankPerSock
	return uint16(bankPerSock) - used
}

// reset implements §4.2's Mode-register reset path and §3's Lifecycle
// reset semantics.
func (u *Uthernet2) reset() {
	for n := range u.sockets {
		u.sockets[n].close()
	}
	u.vtcp = nil
	u.dhcp = virtualnet.DHCPSession{}

	for i := range u.memory {
		u.memory[i] = 0
	}
	u.addrPtr = 0
	u.mode = 0

	mac, _ := config.MAC6(u.cfg.CardMAC)
	copy(u.memory[regSHAR:], mac[:])
	copy(u.memory[regGAR:], defaultGateway[:])
	copy(u.memory[regSUBR:], defaultSubnet[:])
	copy(u.memory[regSIPR:], defaultIP[:])
	u.memory[regRTR] = defaultRTRHi
	u.memory[regRTR+1] = defaultRTRLo
	u.memory[regRCR] = defaultRCR
	u.memory[regRMSR] = defaultRMSR
	u.memory[regTMSR] = defaultTMSR
	u.memory[regPPTLR] = 0

	for n := range u.sockets {
		base := socketRegBase(n)
		u.memory[base+sSR] = srCLOSED
		u.writeU16(base+sTXRD0, uint16(txBase(n)))
		u.writeU16(base+sTXWR0, uint16(txBase(n)))
		u.writeU16(base+sRXRD0, uint16(rxBase(n)))
		u.sockets[n].prevRXRD = uint16(rxBase(n))
	}
}

func (u *Uthernet2) writeU16(off int, v uint16) {
	u.memory[off] = byte(v >> 8)
	u.memory[off+1] = byte(v)
}

func (u *Uthernet2) readU16(off int) uint16 {
	return uint16(u.memory[off])<<8 | uint16(u.memory[off+1])
}
