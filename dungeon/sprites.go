package dungeon

import (
	"fmt"

	"zroom/log"
	"zroom/rom"
)

const (
	spriteEntrySize  = 3
	spriteTerminator = 0xFF
	loromBankSize    = 0x8000
)

// SpriteEntry is one 3-byte record of a room sprite stream.
type SpriteEntry [spriteEntrySize]uint8

// SpriteStream is a room's sprite list as stored: a sort mode byte, the
// entries and a 0xFF terminator.
type SpriteStream struct {
	SortMode uint8
	Entries  []SpriteEntry
}

// Payload returns the entries followed by the terminator.
func (s SpriteStream) Payload() []byte {
	p := make([]byte, 0, len(s.Entries)*spriteEntrySize+1)
	for _, e := range s.Entries {
		p = append(p, e[:]...)
	}
	return append(p, spriteTerminator)
}

// Bytes returns the stream as stored in the rom.
func (s SpriteStream) Bytes() []byte {
	return append([]byte{s.SortMode}, s.Payload()...)
}

// ParseSpritePayload splits a payload (entries plus terminator, no sort
// byte) into entries.
func ParseSpritePayload(p []byte) ([]SpriteEntry, error) {
	if len(p)%spriteEntrySize != 1 {
		return nil, fmt.Errorf("%w: sprite payload of %d bytes is not 3*N+1", rom.ErrInvalidArgument, len(p))
	}
	if p[len(p)-1] != spriteTerminator {
		return nil, fmt.Errorf("%w: sprite payload does not end with 0x%02X", rom.ErrInvalidArgument, spriteTerminator)
	}
	entries := make([]SpriteEntry, 0, len(p)/spriteEntrySize)
	for i := 0; i+spriteEntrySize < len(p); i += spriteEntrySize {
		if p[i] == spriteTerminator {
			return nil, fmt.Errorf("%w: sprite entry %d starts with the terminator", rom.ErrInvalidArgument, i/spriteEntrySize)
		}
		entries = append(entries, SpriteEntry(p[i:i+spriteEntrySize]))
	}
	return entries, nil
}

// StreamTable is the per-room sprite pointer table of one rom: 2-byte
// pointers into a single bank, followed by the streams themselves.
type StreamTable struct {
	r         *rom.Rom
	bank      uint32
	table     int // pc of the pointer table
	dataStart int // first byte after the pointer table
	bankStart int
	bankEnd   int
}

// SpriteTable locates the sprite pointer table of r.
func (l *Layout) SpriteTable(r *rom.Rom) (*StreamTable, error) {
	if !r.Loaded() {
		return nil, rom.ErrNotLoaded
	}
	word, err := r.Read16(l.SpritePointerLocator)
	if err != nil {
		return nil, fmt.Errorf("sprite pointer locator: %w", err)
	}

	bank := uint32(l.SpriteBank)
	table, err := r.Resolve(bank<<16 | uint32(word))
	if err != nil {
		return nil, fmt.Errorf("sprite pointer table $%02X:%04X: %w", bank, word, err)
	}

	t := &StreamTable{
		r:         r,
		bank:      bank,
		table:     table,
		bankStart: table &^ (loromBankSize - 1),
		dataStart: table + NumberOfRooms*2,
	}
	t.bankEnd = min(t.bankStart+loromBankSize, r.Len())
	if t.dataStart > t.bankEnd {
		return nil, fmt.Errorf("%w: sprite pointer table at 0x%06X runs past its bank", rom.ErrOutOfRange, table)
	}
	return t, nil
}

// DataStart returns the pc of the first byte after the pointer table.
func (t *StreamTable) DataStart() int { return t.dataStart }

// BankEnd returns the pc just past the sprite bank.
func (t *StreamTable) BankEnd() int { return t.bankEnd }

func (t *StreamTable) pointerAddr(room RoomID) int { return t.table + int(room)*2 }

// Pointer returns the pc of room's stream, or false if the room has none.
func (t *StreamTable) Pointer(room RoomID) (int, bool, error) {
	if err := checkRoom(room); err != nil {
		return 0, false, err
	}
	word, err := t.r.Read16(t.pointerAddr(room))
	if err != nil {
		return 0, false, err
	}
	if word == 0 {
		return 0, false, nil
	}
	pc, err := t.r.Resolve(t.bank<<16 | uint32(word))
	if err != nil {
		return 0, false, fmt.Errorf("room %v sprite pointer $%02X:%04X: %w", room, t.bank, word, err)
	}
	if pc < t.bankStart || pc >= t.bankEnd {
		return 0, false, fmt.Errorf("%w: room %v sprite stream at 0x%06X outside its bank", rom.ErrOutOfRange, room, pc)
	}
	return pc, true, nil
}

// streamEnd returns the pc just past the terminator of the stream at start.
func (t *StreamTable) streamEnd(start int) (int, error) {
	data := t.r.Bytes()
	for pos := start + 1; pos < t.bankEnd; pos += spriteEntrySize {
		if data[pos] == spriteTerminator {
			return pos + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: sprite stream at 0x%06X has no terminator before the end of its bank 0x%06X",
		rom.ErrFailedPrecondition, start, t.bankEnd)
}

// Stream decodes room's sprite stream. A room without a stream yields an
// empty one.
func (t *StreamTable) Stream(room RoomID) (SpriteStream, error) {
	var s SpriteStream
	start, ok, err := t.Pointer(room)
	if err != nil || !ok {
		return s, err
	}
	end, err := t.streamEnd(start)
	if err != nil {
		return s, fmt.Errorf("room %v: %w", room, err)
	}

	data := t.r.Bytes()
	s.SortMode = data[start]
	for pos := start + 1; pos+spriteEntrySize < end; pos += spriteEntrySize {
		s.Entries = append(s.Entries, SpriteEntry(data[pos:pos+spriteEntrySize]))
	}
	return s, nil
}

type spriteSlot struct {
	room       RoomID
	start, end int
}

func (t *StreamTable) slots() ([]spriteSlot, error) {
	var slots []spriteSlot
	for room := RoomID(0); room < NumberOfRooms; room++ {
		start, ok, err := t.Pointer(room)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		end, err := t.streamEnd(start)
		if err != nil {
			return nil, fmt.Errorf("room %v: %w", room, err)
		}
		slots = append(slots, spriteSlot{room, start, end})
	}
	return slots, nil
}

// FindMaxUsedEnd returns the highest stream end of all rooms, or the data
// start if no room has a stream. Free space begins there.
func (t *StreamTable) FindMaxUsedEnd() (int, error) {
	slots, err := t.slots()
	if err != nil {
		return 0, err
	}
	end := t.dataStart
	for _, s := range slots {
		end = max(end, s.end)
	}
	return end, nil
}

// FreeBytes returns how many bytes remain between the bump pointer and the
// end of the bank.
func (t *StreamTable) FreeBytes() (int, error) {
	end, err := t.FindMaxUsedEnd()
	if err != nil {
		return 0, err
	}
	return t.bankEnd - end, nil
}

// aliased reports whether the stream of a room other than owner shares any
// byte with [start, end).
func aliased(slots []spriteSlot, owner RoomID, start, end int) bool {
	for _, s := range slots {
		if s.room != owner && s.start < end && start < s.end {
			return true
		}
	}
	return false
}

// Relocate writes room's stream with the new payload (entries plus
// terminator) at the end of the used space, keeping the sort mode byte, and
// repoints the room to it. The old stream is zero-filled unless another room's
// stream shares its bytes. If the bank has no room left nothing is written.
func (t *StreamTable) Relocate(room RoomID, payload []byte) (int, error) {
	return t.relocate(room, payload, nil)
}

// relocate moves room's stream to the bump pointer. sortMode, if not nil,
// replaces the sort mode byte of the old stream.
func (t *StreamTable) relocate(room RoomID, payload []byte, sortMode *uint8) (int, error) {
	if err := checkRoom(room); err != nil {
		return 0, err
	}
	if _, err := ParseSpritePayload(payload); err != nil {
		return 0, err
	}

	slots, err := t.slots()
	if err != nil {
		return 0, err
	}

	var old *spriteSlot
	cursor := t.dataStart
	for i := range slots {
		cursor = max(cursor, slots[i].end)
		if slots[i].room == room {
			old = &slots[i]
		}
	}

	var mode uint8
	switch {
	case sortMode != nil:
		mode = *sortMode
	case old != nil:
		mode = t.r.Bytes()[old.start]
	}
	stream := append([]byte{mode}, payload...)

	if cursor+len(stream) > t.bankEnd {
		return 0, fmt.Errorf("%w: room %v sprite stream of %d bytes does not fit at 0x%06X (bank ends at 0x%06X)",
			rom.ErrResourceExhausted, room, len(stream), cursor, t.bankEnd)
	}

	reclaim := old != nil && !aliased(slots, room, old.start, old.end)

	ptrAddr := t.pointerAddr(room)
	fence := rom.NewWriteFence("SpriteRelocate")
	if err := fence.Allow(cursor, cursor+len(stream), "SpriteStream"); err != nil {
		return 0, err
	}
	if err := fence.Allow(ptrAddr, ptrAddr+2, "SpritePointer"); err != nil {
		return 0, err
	}
	if reclaim {
		if err := fence.Allow(old.start, old.end, "SpriteOldSlot"); err != nil {
			return 0, err
		}
	}

	err = t.r.WithFence(fence, func() error {
		if err := t.r.WriteBytes(cursor, stream); err != nil {
			return err
		}
		if err := t.r.Write16(ptrAddr, uint16(rom.PcToSnes(uint32(cursor)))); err != nil {
			return err
		}
		if reclaim {
			return t.r.Fill(old.start, old.end-old.start, 0)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.ModSprites.DebugZ("sprite stream relocated").
		Stringer("room", room).
		Hex24("dest", uint32(cursor)).
		Int("len", len(stream)).
		Bool("reclaimed", reclaim).
		End()
	return cursor, nil
}

// Save stores s as room's stream. It is written over the old stream when
// the bytes written belong to no other room's stream and fit in the bank,
// otherwise it is relocated. The pc of the stream is returned.
func (t *StreamTable) Save(room RoomID, s SpriteStream) (int, error) {
	if err := checkRoom(room); err != nil {
		return 0, err
	}
	for i, e := range s.Entries {
		if e[0] == spriteTerminator {
			return 0, fmt.Errorf("%w: sprite entry %d starts with the terminator", rom.ErrInvalidArgument, i)
		}
	}

	slots, err := t.slots()
	if err != nil {
		return 0, err
	}

	var old *spriteSlot
	for i := range slots {
		if slots[i].room == room {
			old = &slots[i]
		}
	}
	if old == nil {
		return t.relocate(room, s.Payload(), &s.SortMode)
	}

	stream := s.Bytes()
	end := old.start + len(stream)
	if end > t.bankEnd || aliased(slots, room, old.start, end) {
		log.ModSprites.DebugZ("sprite stream does not fit in place").
			Stringer("room", room).
			Hex24("start", uint32(old.start)).
			Int("len", len(stream)).
			End()
		return t.relocate(room, s.Payload(), &s.SortMode)
	}

	fence := rom.NewWriteFence("SpriteSave")
	if err := fence.Allow(old.start, end, "SpriteStream"); err != nil {
		return 0, err
	}
	err = t.r.WithFence(fence, func() error {
		return t.r.WriteBytes(old.start, stream)
	})
	if err != nil {
		return 0, err
	}
	return old.start, nil
}
