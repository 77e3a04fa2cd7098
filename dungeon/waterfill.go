package dungeon

import (
	"fmt"
	"math/bits"
	"slices"
	"sort"

	"zroom/log"
	"zroom/rom"
)

const waterFillHeaderEntrySize = 4 // room, mask, data offset (u16)

// WaterFillZone is one room's water fill: the SRAM flag bit gating it and
// the grid cells it fills. A zero mask means "allocate one on write".
type WaterFillZone struct {
	Room        RoomID
	SRAMBitMask uint8
	FillOffsets []uint16
}

func singleBit(mask uint8) bool { return bits.OnesCount8(mask) == 1 }

// LoadWaterFill reads the water fill table. A rom without the reserved
// region, an empty table or one claiming more than 8 zones yields no zones.
// Any malformed header or zone data is a failed precondition.
func (l *Layout) LoadWaterFill(r *rom.Rom) ([]WaterFillZone, error) {
	if !r.Loaded() {
		return nil, rom.ErrNotLoaded
	}
	if !l.HasWaterFillRegion(r.Len()) {
		return nil, nil
	}
	if err := l.CheckCollisionClearOfWaterFill(r); err != nil {
		return nil, err
	}

	region, err := r.Slice(l.WaterFillStart, l.waterFillSize())
	if err != nil {
		return nil, err
	}

	count := int(region[0])
	if count == 0 {
		return nil, nil
	}
	if count > MaxWaterFillZones {
		// more zones than flag bits, assume the region holds garbage
		log.ModWaterFill.WarnZ("ignoring water fill table").Int("zone_count", count).End()
		return nil, nil
	}

	headerSize := 1 + count*waterFillHeaderEntrySize
	if headerSize > len(region) {
		return nil, fmt.Errorf("%w: water fill header of %d zones exceeds the reserved region", rom.ErrFailedPrecondition, count)
	}

	zones := make([]WaterFillZone, 0, count)
	seen := make(map[RoomID]bool, count)
	for i := 0; i < count; i++ {
		h := region[1+i*waterFillHeaderEntrySize:]
		room, mask := RoomID(h[0]), h[1]
		dataOff := int(h[2]) | int(h[3])<<8

		switch {
		case !room.Valid():
			return nil, fmt.Errorf("%w: water fill entry %d has invalid room %d", rom.ErrFailedPrecondition, i, int(room))
		case !singleBit(mask):
			return nil, fmt.Errorf("%w: water fill entry for room %v has invalid sram mask 0x%02X", rom.ErrFailedPrecondition, room, mask)
		case seen[room]:
			return nil, fmt.Errorf("%w: duplicate water fill entry for room %v", rom.ErrFailedPrecondition, room)
		case dataOff >= len(region):
			return nil, fmt.Errorf("%w: water fill entry for room %v data offset 0x%04X outside the region", rom.ErrFailedPrecondition, room, dataOff)
		case dataOff < headerSize:
			return nil, fmt.Errorf("%w: water fill entry for room %v data offset 0x%04X overlaps the header", rom.ErrFailedPrecondition, room, dataOff)
		}
		seen[room] = true

		n := int(region[dataOff])
		if dataOff+1+n*2 > len(region) {
			return nil, fmt.Errorf("%w: water fill data of room %v (%d tiles) exceeds the reserved region", rom.ErrFailedPrecondition, room, n)
		}
		offsets := make([]uint16, n)
		for j := range offsets {
			p := dataOff + 1 + j*2
			off := uint16(region[p]) | uint16(region[p+1])<<8
			if int(off) >= GridTiles {
				return nil, fmt.Errorf("%w: water fill offset %d of room %v outside the 64x64 grid", rom.ErrFailedPrecondition, off, room)
			}
			offsets[j] = off
		}
		zones = append(zones, WaterFillZone{Room: room, SRAMBitMask: mask, FillOffsets: offsets})
	}

	sortZones(zones)
	for i := range zones {
		zones[i].FillOffsets = sortOffsets(zones[i].FillOffsets)
	}

	log.ModWaterFill.DebugZ("water fill table loaded").Int("zones", len(zones)).End()
	return zones, nil
}

func sortZones(zones []WaterFillZone) {
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Room < zones[j].Room })
}

// sortOffsets returns a sorted copy of offsets with duplicates removed.
func sortOffsets(offsets []uint16) []uint16 {
	out := slices.Clone(offsets)
	slices.Sort(out)
	return slices.Compact(out)
}

// NormalizeWaterFill returns the zones as they will be persisted: one zone
// per room (the last one given wins), sorted by room, offsets sorted and
// unique, and every zero mask replaced by the lowest SRAM bit no other zone
// uses. The input is not modified.
func NormalizeWaterFill(zones []WaterFillZone) ([]WaterFillZone, error) {
	byRoom := make(map[RoomID]int, len(zones))
	var out []WaterFillZone
	for _, z := range zones {
		if err := checkRoom(z.Room); err != nil {
			return nil, err
		}
		if z.Room > 0xFF {
			return nil, fmt.Errorf("%w: room %v does not fit the water fill table", rom.ErrInvalidArgument, z.Room)
		}
		z.FillOffsets = sortOffsets(z.FillOffsets)
		if i, ok := byRoom[z.Room]; ok {
			out[i] = z
			continue
		}
		byRoom[z.Room] = len(out)
		out = append(out, z)
	}
	sortZones(out)

	if len(out) > MaxWaterFillZones {
		return nil, fmt.Errorf("%w: %d water fill zones, the sram flag byte holds %d", rom.ErrResourceExhausted, len(out), MaxWaterFillZones)
	}

	var used uint8
	owner := make(map[uint8]RoomID)
	for _, z := range out {
		if n := len(z.FillOffsets); n > MaxZoneTiles {
			return nil, fmt.Errorf("%w: room %v has %d fill tiles, max %d", rom.ErrResourceExhausted, z.Room, n, MaxZoneTiles)
		}
		if last := len(z.FillOffsets) - 1; last >= 0 && int(z.FillOffsets[last]) >= GridTiles {
			return nil, fmt.Errorf("%w: room %v fill offset %d outside the 64x64 grid", rom.ErrOutOfRange, z.Room, z.FillOffsets[last])
		}
		if z.SRAMBitMask == 0 {
			continue
		}
		if !singleBit(z.SRAMBitMask) {
			return nil, fmt.Errorf("%w: room %v sram mask 0x%02X is not a single bit", rom.ErrInvalidArgument, z.Room, z.SRAMBitMask)
		}
		if prev, dup := owner[z.SRAMBitMask]; dup {
			return nil, fmt.Errorf("%w: sram mask 0x%02X used by rooms %v and %v", rom.ErrInvalidArgument, z.SRAMBitMask, prev, z.Room)
		}
		owner[z.SRAMBitMask] = z.Room
		used |= z.SRAMBitMask
	}

	for i := range out {
		if out[i].SRAMBitMask != 0 {
			continue
		}
		if used == 0xFF {
			return nil, fmt.Errorf("%w: no free sram bit left for room %v", rom.ErrResourceExhausted, out[i].Room)
		}
		bit := uint8(1) << bits.TrailingZeros8(^used)
		out[i].SRAMBitMask = bit
		used |= bit
	}
	return out, nil
}

// MaskChanges counts the zones of before whose mask differs in after (or
// which are absent from after).
func MaskChanges(before, after []WaterFillZone) int {
	masks := make(map[RoomID]uint8, len(after))
	for _, z := range after {
		masks[z.Room] = z.SRAMBitMask
	}
	n := 0
	for _, z := range before {
		if m, ok := masks[z.Room]; !ok || m != z.SRAMBitMask {
			n++
		}
	}
	return n
}

// serializeWaterFill lays out normalized zones: the zone count, one header
// entry per zone then each zone's tile count and offsets. Data offsets are
// relative to the start of the region.
func serializeWaterFill(zones []WaterFillZone) []byte {
	buf := make([]byte, 1+len(zones)*waterFillHeaderEntrySize)
	buf[0] = uint8(len(zones))
	for i, z := range zones {
		h := buf[1+i*waterFillHeaderEntrySize:]
		off := len(buf)
		h[0] = uint8(z.Room)
		h[1] = z.SRAMBitMask
		h[2] = uint8(off)
		h[3] = uint8(off >> 8)

		buf = append(buf, uint8(len(z.FillOffsets)))
		for _, o := range z.FillOffsets {
			buf = append(buf, uint8(o), uint8(o>>8))
		}
	}
	return buf
}

// WriteWaterFill normalizes zones and rewrites the whole reserved region,
// zero-padding the unused tail. The only bytes writable while doing so are
// those of the region. The normalized zones are returned.
func (l *Layout) WriteWaterFill(r *rom.Rom, zones []WaterFillZone) ([]WaterFillZone, error) {
	if !r.Loaded() {
		return nil, rom.ErrNotLoaded
	}
	if !l.HasWaterFillRegion(r.Len()) {
		return nil, fmt.Errorf("%w: water fill reserved region not present in this rom", rom.ErrOutOfRange)
	}
	if err := l.CheckCollisionClearOfWaterFill(r); err != nil {
		return nil, err
	}

	norm, err := NormalizeWaterFill(zones)
	if err != nil {
		return nil, err
	}

	data := serializeWaterFill(norm)
	size := l.waterFillSize()
	if len(data) > size {
		return nil, fmt.Errorf("%w: water fill table is %d bytes, reserved region holds %d", rom.ErrResourceExhausted, len(data), size)
	}
	region := make([]byte, size)
	copy(region, data)

	fence := rom.NewWriteFence("WaterFillTable")
	if err := fence.Allow(l.WaterFillStart, l.WaterFillEnd, regionWaterFill); err != nil {
		return nil, err
	}
	err = r.WithFence(fence, func() error {
		return r.WriteBytes(l.WaterFillStart, region)
	})
	if err != nil {
		return nil, err
	}

	log.ModWaterFill.DebugZ("water fill table written").
		Int("zones", len(norm)).
		Int("used", len(data)).
		Int("size", size).
		End()
	return norm, nil
}
