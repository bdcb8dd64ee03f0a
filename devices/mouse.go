package devices

import (
	"example.com/uthernet2/bus"
	"example.com/uthernet2/internal/devlog"
)

// AppleMouse emulates the 6821 PIA-based AppleMouse card: a
// banked-ROM firmware window plus a synthetic quadrature/button
// register fed by SetPosition/SetButton rather than a real input
// device (§4.8).
type AppleMouse struct {
	slot int
	log  *devlog.Logger

	romPath      string
	rom          mouseROM
	romFromFile  bool

	ddra, ddrb byte
	ora, orb   byte
	cra, crb   byte

	curX, curY int
	remX, remY int // remaining movement, signed: >0 pending right/down
	tickPhase  bool
	pressed    bool
}

// NewAppleMouse creates the card for the given slot.
func NewAppleMouse(slot int, log *devlog.Logger) *AppleMouse {
	return &AppleMouse{slot: slot, log: log}
}

// SetROMPath adds an explicit mouse.rom location that is tried before
// the fixed candidate list (§4.9). Call before Init.
func (m *AppleMouse) SetROMPath(path string) { m.romPath = path }

// Init implements bus.Device.
func (m *AppleMouse) Init() error {
	m.rom, m.romFromFile = loadROM(m.romPath, m.log)
	m.ddra, m.ddrb = 0, 0
	m.ora, m.orb = 0, 0
	m.cra, m.crb = 0, 0
	m.curX, m.curY = 0, 0
	m.remX, m.remY = 0, 0
	m.pressed = false
	return nil
}

// Handle implements bus.Device.
func (m *AppleMouse) Handle(a bus.Access) int {
	if a.IsROM() {
		page := int(m.orb & mouseROMBankSel)
		return int(m.rom[page][a.PLoc])
	}
	return m.handlePIA(a.PSW, a.Val)
}

func (m *AppleMouse) handlePIA(psw, val int) int {
	switch psw {
	case piaORA_DDRA:
		if m.cra&craDDRSelect != 0 {
			if val < 0 {
				return int(m.readORA())
			}
			return 0 // ORA is synthesized; writes are accepted but ignored
		}
		if val < 0 {
			return int(m.ddra)
		}
		m.ddra = byte(val)
		return 0

	case piaCRA:
		if val < 0 {
			return int(m.cra)
		}
		m.cra = byte(val)
		return 0

	case piaORB_DDRB:
		if m.crb&craDDRSelect != 0 {
			if val < 0 {
				return int(m.orb)
			}
			m.orb = byte(val) // low 3 bits select the ROM page
			return 0
		}
		if val < 0 {
			return int(m.ddrb)
		}
		m.ddrb = byte(val)
		return 0

	case piaCRB:
		if val < 0 {
			return int(m.crb)
		}
		m.crb = byte(val)
		return 0

	default:
		return 0
	}
}

// readORA computes the synthetic quadrature/button byte and consumes
// one unit of whichever axis still has pending movement (§4.8).
func (m *AppleMouse) readORA() byte {
	m.tickPhase = !m.tickPhase

	var b byte
	if m.remX != 0 {
		if m.tickPhase {
			b |= oraXTick
		}
		if m.remX > 0 {
			b |= oraXRight
		}
	}
	if m.remY != 0 {
		if m.tickPhase {
			b |= oraYTick
		}
		if m.remY > 0 {
			b |= oraYDown
		}
	}
	if !m.pressed {
		b |= oraButton // active low: set when released
	}

	if m.remX > 0 {
		m.remX--
	} else if m.remX < 0 {
		m.remX++
	}
	if m.remY > 0 {
		m.remY--
	} else if m.remY < 0 {
		m.remY++
	}

	return b
}

// SetPosition records a new absolute mouse position, accumulating the
// delta onto whatever movement is still pending (§6: mouse_set_position).
func (m *AppleMouse) SetPosition(x, y int) {
	m.remX += x - m.curX
	m.remY += y - m.curY
	m.curX, m.curY = x, y
}

// SetButton records the physical button state (§6: mouse_set_button).
func (m *AppleMouse) SetButton(pressed bool) { m.pressed = pressed }

// State reports the last position set and the current button state
// (§6: mouse_get_state).
func (m *AppleMouse) State() (x, y int, button bool) {
	return m.curX, m.curY, m.pressed
}
