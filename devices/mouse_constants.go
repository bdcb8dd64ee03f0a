package devices

// 6821 PIA soft-switch offsets (§4.8).
const (
	piaORA_DDRA = 0 // ORA or DDRA, gated by CRA bit 2
	piaCRA      = 1
	piaORB_DDRB = 2 // ORB or DDRB, gated by CRB bit 2
	piaCRB      = 3
)

// Control register bits.
const (
	craDDRSelect = 0x04 // set: ORA/ORB is the data register; clear: DDRA/DDRB
)

// ORA quadrature/button bit layout (§4.8).
const (
	oraXTick  = 0x01
	oraXRight = 0x02
	oraYDown  = 0x04
	oraYTick  = 0x08
	oraButton = 0x80 // active low: set when released
)

const (
	mouseROMPages  = 8
	mouseROMPageSz = 2048
	mouseROMBankSel = 0x07 // low three bits of ORB select the page
)

// Synthesized minimal ROM content (§4.8): used whenever no mouse.rom
// file is found at any candidate path.
var mouseROMMagic = map[int]byte{
	0x05: 0x38,
	0x07: 0x18,
	0x0B: 0x01,
	0x0C: 0x20,
	0xFB: 0xD6,
}

var mouseROMEntryPoints = []int{0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1C}

const mouseROMRTS = 0x60
