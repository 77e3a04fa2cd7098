package rom

import (
	"fmt"

	"github.com/alttpo/snes/mapping/lorom"
)

// SnesToPc converts a LoROM bus address to a file offset. Only the ROM half
// of a bank ($8000-$FFFF) maps to the image; WRAM banks are rejected.
func SnesToPc(addr uint32) (uint32, error) {
	addr &= 0x7F_FFFF // FastROM mirrors
	bank := addr >> 16
	if addr&0x8000 == 0 || bank >= 0x7E {
		return 0, fmt.Errorf("%w: $%02X:%04X is not a LoROM rom address", ErrOutOfRange, bank, addr&0xFFFF)
	}
	pc, err := lorom.BusAddressToPak(addr)
	if err != nil {
		return 0, fmt.Errorf("%w: $%02X:%04X: %v", ErrOutOfRange, bank, addr&0xFFFF, err)
	}
	return pc, nil
}

// PcToSnes converts a file offset to its (SlowROM) LoROM bus address.
func PcToSnes(pc uint32) uint32 {
	return ((pc << 1) & 0x7F_0000) | (pc & 0x7FFF) | 0x8000
}

// Resolve converts a bus address to an offset inside this image.
func (r *Rom) Resolve(addr uint32) (int, error) {
	pc, err := SnesToPc(addr)
	if err != nil {
		return 0, err
	}
	if int(pc) >= len(r.data) {
		return 0, fmt.Errorf("%w: $%06X resolves to 0x%06X past end of rom (0x%06X)", ErrOutOfRange, addr, pc, len(r.data))
	}
	return int(pc), nil
}
