package dungeon

import (
	"fmt"

	"zroom/log"
	"zroom/rom"
)

// CollisionRoom is the interchange form of one room's custom collision:
// its non-zero cells in ascending offset order.
type CollisionRoom struct {
	Room  RoomID
	Tiles []CollisionTile
}

// Map expands the room into a full grid.
func (cr CollisionRoom) Map() (*CollisionMap, error) {
	m := &CollisionMap{}
	for _, t := range cr.Tiles {
		if int(t.Offset) >= GridTiles {
			return nil, fmt.Errorf("%w: room %v offset %d outside the grid", rom.ErrOutOfRange, cr.Room, t.Offset)
		}
		m.Tiles[t.Offset] = t.Value
	}
	m.HasData = !m.Empty()
	return m, nil
}

type collisionSlot struct {
	room       RoomID
	start, end int
}

// collisionSlots lists the streams of all rooms living in the collision data
// region.
func (l *Layout) collisionSlots(r *rom.Rom) ([]collisionSlot, error) {
	var slots []collisionSlot
	for room := RoomID(0); room < NumberOfRooms; room++ {
		start, ok, err := l.collisionStreamStart(r, room)
		if err != nil {
			return nil, err
		}
		if !ok || start < l.CollisionData || start >= l.SoftEnd() {
			continue
		}
		end, err := l.collisionStreamEnd(r, start)
		if err != nil {
			return nil, fmt.Errorf("room %v: %w", room, err)
		}
		slots = append(slots, collisionSlot{room, start, end})
	}
	return slots, nil
}

// maxEnd is the bump pointer of a set of slots: the highest stream end, or
// floor if there is none.
func maxEnd(floor int, ends ...int) int {
	m := floor
	for _, e := range ends {
		m = max(m, e)
	}
	return m
}

// WriteCollisionMap stores m as the custom collision of room. An empty map
// (or one without data) clears the room's pointer. The new stream is written
// in place when the room exclusively owns a slot big enough, otherwise it is
// appended after the last used stream and the old slot is zero-filled unless
// it shares bytes with another room's stream.
func (l *Layout) WriteCollisionMap(r *rom.Rom, room RoomID, m *CollisionMap) error {
	if !r.Loaded() {
		return rom.ErrNotLoaded
	}
	if err := checkRoom(room); err != nil {
		return err
	}
	if !l.HasCollisionWriteSupport(r.Len()) {
		return fmt.Errorf("%w: custom collision write support not present in this rom", rom.ErrFailedPrecondition)
	}

	slots, err := l.collisionSlots(r)
	if err != nil {
		return err
	}

	var old *collisionSlot
	ends := make([]int, 0, len(slots))
	for i := range slots {
		ends = append(ends, slots[i].end)
		if slots[i].room == room {
			old = &slots[i]
		}
	}
	reclaimOld := old != nil && !slotAliased(slots, room, old.start, old.end)

	ptrAddr := l.CollisionPointers + int(room)*3
	fence := rom.NewWriteFence("CustomCollision")
	if err := fence.Allow(ptrAddr, ptrAddr+3, "CollisionPointer"); err != nil {
		return err
	}

	if m == nil || !m.HasData || m.Empty() {
		if reclaimOld {
			if err := fence.Allow(old.start, old.end, "CollisionOldSlot"); err != nil {
				return err
			}
		}
		return r.WithFence(fence, func() error {
			if err := r.Write24(ptrAddr, 0); err != nil {
				return err
			}
			if reclaimOld {
				return r.Fill(old.start, old.end-old.start, 0)
			}
			return nil
		})
	}

	stream := EncodeCollision(m)
	inPlace := reclaimOld && len(stream) <= old.end-old.start

	var dest int
	if inPlace {
		dest = old.start
		if err := fence.Allow(old.start, old.end, "CollisionStream"); err != nil {
			return err
		}
	} else {
		dest = maxEnd(l.CollisionData, ends...)
		if dest+len(stream) > l.SoftEnd() {
			return fmt.Errorf("%w: room %v collision stream of %d bytes does not fit at 0x%06X (soft end 0x%06X)",
				rom.ErrResourceExhausted, room, len(stream), dest, l.SoftEnd())
		}
		if err := fence.Allow(dest, dest+len(stream), "CollisionStream"); err != nil {
			return err
		}
		if reclaimOld {
			if err := fence.Allow(old.start, old.end, "CollisionOldSlot"); err != nil {
				return err
			}
		}
	}

	err = r.WithFence(fence, func() error {
		if err := r.WriteBytes(dest, stream); err != nil {
			return err
		}
		if inPlace {
			if pad := old.end - dest - len(stream); pad > 0 {
				if err := r.Fill(dest+len(stream), pad, 0); err != nil {
					return err
				}
			}
		}
		if err := r.Write24(ptrAddr, rom.PcToSnes(uint32(dest))); err != nil {
			return err
		}
		if reclaimOld && !inPlace {
			return r.Fill(old.start, old.end-old.start, 0)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.ModCollision.DebugZ("collision written").
		Stringer("room", room).
		Hex24("dest", uint32(dest)).
		Int("len", len(stream)).
		Bool("in_place", inPlace).
		End()
	return nil
}

// slotAliased reports whether the stream of any room other than owner shares
// a byte with [start, end).
func slotAliased(slots []collisionSlot, owner RoomID, start, end int) bool {
	for _, s := range slots {
		if s.room != owner && s.start < end && start < s.end {
			return true
		}
	}
	return false
}

// CollisionSaveSummary counts what SaveCollisionRooms did.
type CollisionSaveSummary struct {
	Populated int // rooms written with at least one non-zero cell
	Cleared   int // rooms whose custom collision was removed
}

// SaveCollisionRooms applies imported rooms to the rom. Rooms listed with no
// non-zero cell are cleared; with replaceAll every room not listed is cleared
// as well. All writes happen under a fence limited to the collision pointer
// table and data region.
func (l *Layout) SaveCollisionRooms(r *rom.Rom, rooms []CollisionRoom, replaceAll bool) (CollisionSaveSummary, error) {
	var sum CollisionSaveSummary
	if !r.Loaded() {
		return sum, rom.ErrNotLoaded
	}
	if !l.HasCollisionWriteSupport(r.Len()) {
		return sum, fmt.Errorf("%w: custom collision write support not present in this rom", rom.ErrFailedPrecondition)
	}

	maps := make(map[RoomID]*CollisionMap, len(rooms))
	for _, cr := range rooms {
		if err := checkRoom(cr.Room); err != nil {
			return sum, err
		}
		if _, dup := maps[cr.Room]; dup {
			return sum, fmt.Errorf("%w: room %v listed twice", rom.ErrInvalidArgument, cr.Room)
		}
		m, err := cr.Map()
		if err != nil {
			return sum, err
		}
		maps[cr.Room] = m
	}

	bank := rom.NewWriteFence("CollisionBank")
	if err := bank.Allow(l.CollisionPointers, l.CollisionPointers+NumberOfRooms*3, regionCollisionPointers); err != nil {
		return sum, err
	}
	if err := bank.Allow(l.CollisionData, l.SoftEnd(), regionCollisionData); err != nil {
		return sum, err
	}

	err := r.WithFence(bank, func() error {
		for room := RoomID(0); room < NumberOfRooms; room++ {
			m, listed := maps[room]
			if !listed && !replaceAll {
				continue
			}
			if err := l.WriteCollisionMap(r, room, m); err != nil {
				return err
			}
			if m != nil && m.HasData {
				sum.Populated++
			} else {
				sum.Cleared++
			}
		}
		return nil
	})
	return sum, err
}

// ExportCollisionRooms collects the custom collision of the given rooms
// (all rooms if none given). Rooms without any non-zero cell are skipped.
func (l *Layout) ExportCollisionRooms(r *rom.Rom, rooms ...RoomID) ([]CollisionRoom, error) {
	if len(rooms) == 0 {
		rooms = make([]RoomID, NumberOfRooms)
		for i := range rooms {
			rooms[i] = RoomID(i)
		}
	}

	var out []CollisionRoom
	for _, room := range rooms {
		m, err := l.LoadCollisionMap(r, room)
		if err != nil {
			return nil, err
		}
		if !m.HasData {
			continue
		}
		if tiles := m.NonZero(); len(tiles) > 0 {
			out = append(out, CollisionRoom{Room: room, Tiles: tiles})
		}
	}
	return out, nil
}

// CollisionFreeBytes returns how many bytes are left between the last
// collision stream and the soft end.
func (l *Layout) CollisionFreeBytes(r *rom.Rom) (int, error) {
	if !r.Loaded() {
		return 0, rom.ErrNotLoaded
	}
	if !l.HasCollisionWriteSupport(r.Len()) {
		return 0, nil
	}
	slots, err := l.collisionSlots(r)
	if err != nil {
		return 0, err
	}
	end := l.CollisionData
	for _, s := range slots {
		end = max(end, s.end)
	}
	return l.SoftEnd() - end, nil
}
