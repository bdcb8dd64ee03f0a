package devices

import (
	"os"

	"example.com/uthernet2/internal/devlog"
)

// mouseROM is the eight 2 KiB banks selected by the low three bits of
// ORB (§4.8).
type mouseROM [mouseROMPages][mouseROMPageSz]byte

// candidateROMPaths lists fixed locations the card probes after any
// explicit SetROMPath location (§6: "probes a fixed
// list of candidate paths for mouse.rom; absence is non-fatal").
var candidateROMPaths = []string{
	"mouse.rom",
	"./roms/mouse.rom",
	"/usr/local/share/uthernet2/mouse.rom",
	"/etc/uthernet2/mouse.rom",
}

// loadROM implements §4.9's resolution order: an explicit path first,
// then the fixed candidate list, then a synthesized minimal ROM.
// fromFile reports which branch was taken, for logging only.
func loadROM(explicitPath string, log *devlog.Logger) (rom mouseROM, fromFile bool) {
	paths := candidateROMPaths
	if explicitPath != "" {
		paths = append([]string{explicitPath}, paths...)
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if len(data) < mouseROMPages*mouseROMPageSz {
			log.Debugf("mouse: rom %s too short (%d bytes), skipping", p, len(data))
			continue
		}
		for page := 0; page < mouseROMPages; page++ {
			copy(rom[page][:], data[page*mouseROMPageSz:(page+1)*mouseROMPageSz])
		}
		log.Infof("mouse: loaded rom from %s", p)
		return rom, true
	}
	log.Infof("mouse: no rom file found, synthesizing minimal rom")
	return synthesizeROM(), false
}

// synthesizeROM builds the minimal fallback ROM (§4.8): identification
// bytes plus RTS at the published entry points, replicated identically
// across every bank so bank-switching never surfaces missing content.
func synthesizeROM() mouseROM {
	var page [mouseROMPageSz]byte
	for off, b := range mouseROMMagic {
		page[off] = b
	}
	for _, off := range mouseROMEntryPoints {
		page[off] = mouseROMRTS
	}
	var rom mouseROM
	for i := range rom {
		rom[i] = page
	}
	return rom
}
