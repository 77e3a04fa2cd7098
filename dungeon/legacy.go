package dungeon

import (
	"errors"
	"fmt"
	"io/fs"

	"zroom/log"
	"zroom/rom"
	"zroom/symbols"
)

// legacyWaterGates are the per-room tables of the old hard-coded water gate
// patch, with the SRAM bit each room used.
var legacyWaterGates = []struct {
	label string
	room  RoomID
	mask  uint8
}{
	{"Oracle_WaterGate_Room27_Data", 0x27, 0x01},
	{"Oracle_WaterGate_Room25_Data", 0x25, 0x02},
}

// LoadLegacyWaterGates converts the water gate tables of the legacy patch
// into zones. Their addresses come from the symbol file at symbolPath, or
// next to the rom when symbolPath is empty. No symbol file, or a symbol file
// without the labels, yields no zones.
func (l *Layout) LoadLegacyWaterGates(r *rom.Rom, symbolPath string) ([]WaterFillZone, error) {
	if !r.Loaded() {
		return nil, rom.ErrNotLoaded
	}

	if symbolPath == "" {
		guess, ok := symbols.GuessPath(r.Filename())
		if !ok {
			return nil, nil
		}
		symbolPath = guess
	}

	syms, err := symbols.ReadFile(symbolPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.ModWaterFill.WarnZ("no symbol file").String("path", symbolPath).End()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var zones []WaterFillZone
	for _, g := range legacyWaterGates {
		addr, ok := syms.Lookup(g.label)
		if !ok {
			continue
		}
		z, err := readLegacyZone(r, g.room, g.mask, addr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.label, err)
		}
		zones = append(zones, z)
	}
	sortZones(zones)

	log.ModWaterFill.DebugZ("legacy water gates imported").
		String("symbols", symbolPath).
		Int("zones", len(zones)).
		End()
	return zones, nil
}

// readLegacyZone reads a u8 count followed by count u16 grid offsets.
func readLegacyZone(r *rom.Rom, room RoomID, mask uint8, addr uint32) (WaterFillZone, error) {
	z := WaterFillZone{Room: room, SRAMBitMask: mask}

	pc, err := r.Resolve(addr)
	if err != nil {
		return z, err
	}
	n, err := r.Read8(pc)
	if err != nil {
		return z, err
	}
	raw, err := r.Slice(pc+1, int(n)*2)
	if err != nil {
		return z, fmt.Errorf("legacy water gate data exceeds the rom: %w", err)
	}

	z.FillOffsets = make([]uint16, n)
	for i := range z.FillOffsets {
		off := uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		if int(off) >= GridTiles {
			return z, fmt.Errorf("%w: legacy water gate offset %d outside the 64x64 grid", rom.ErrFailedPrecondition, off)
		}
		z.FillOffsets[i] = off
	}
	z.FillOffsets = sortOffsets(z.FillOffsets)
	return z, nil
}
