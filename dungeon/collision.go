package dungeon

import (
	"fmt"

	"zroom/log"
	"zroom/rom"
)

const (
	collisionSingleTileMarker = 0xF0F0
	collisionEndMarker        = 0xFFFF

	minRectWidth = 3 // shorter runs are cheaper as single tiles
)

// CollisionMap is the 64x64 grid of tile types of a room. Cells not touched
// by the room stream are zero.
type CollisionMap struct {
	Tiles   [GridTiles]uint8
	HasData bool
}

// CollisionTile is one grid cell: Offset is y*64+x.
type CollisionTile struct {
	Offset uint16
	Value  uint8
}

func (m *CollisionMap) Tile(x, y int) uint8 {
	if x < 0 || x >= GridSize || y < 0 || y >= GridSize {
		return 0
	}
	return m.Tiles[y*GridSize+x]
}

// Set changes one cell and marks the map as holding data. Coordinates
// outside the grid are ignored.
func (m *CollisionMap) Set(x, y int, v uint8) {
	if x < 0 || x >= GridSize || y < 0 || y >= GridSize {
		return
	}
	m.Tiles[y*GridSize+x] = v
	m.HasData = true
}

// NonZero lists the non-zero cells in ascending offset order.
func (m *CollisionMap) NonZero() []CollisionTile {
	var tiles []CollisionTile
	for off, v := range m.Tiles {
		if v != 0 {
			tiles = append(tiles, CollisionTile{Offset: uint16(off), Value: v})
		}
	}
	return tiles
}

// Empty reports whether all cells are zero.
func (m *CollisionMap) Empty() bool {
	for _, v := range m.Tiles {
		if v != 0 {
			return false
		}
	}
	return true
}

// walkCollisionStream decodes the stream starting at start and returns the
// offset just past its terminator. No byte at or past limit is read; needing
// one fails with limitErr. set, if not nil, receives every decoded cell.
func walkCollisionStream(data []byte, start, limit int, limitErr error, set func(off int, v uint8)) (int, error) {
	if limit > len(data) {
		limit = len(data)
	}

	pos := start
	need := func(n int, what string) error {
		if pos+n > limit {
			return fmt.Errorf("%w: collision %s at 0x%06X needs %d byte(s), stream must end before 0x%06X (started at 0x%06X)",
				limitErr, what, pos, n, limit, start)
		}
		return nil
	}

	single := false
	for {
		if err := need(2, "token"); err != nil {
			return 0, err
		}
		word := int(data[pos]) | int(data[pos+1])<<8
		pos += 2

		switch word {
		case collisionEndMarker:
			return pos, nil
		case collisionSingleTileMarker:
			single = true
			continue
		}

		if word >= GridTiles {
			return 0, fmt.Errorf("%w: collision offset 0x%04X at 0x%06X outside the 64x64 grid", rom.ErrOutOfRange, word, pos-2)
		}

		if single {
			if err := need(1, "single tile"); err != nil {
				return 0, err
			}
			if set != nil {
				set(word, data[pos])
			}
			pos++
			continue
		}

		if err := need(2, "rectangle header"); err != nil {
			return 0, err
		}
		w, h := int(data[pos]), int(data[pos+1])
		pos += 2
		if err := need(w*h, "rectangle tiles"); err != nil {
			return 0, err
		}
		// zero width or height is a no-op record
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				cell := word + y*GridSize + x
				if cell >= GridTiles {
					return 0, fmt.Errorf("%w: collision rectangle %dx%d at offset 0x%04X runs past the grid", rom.ErrOutOfRange, w, h, word)
				}
				if set != nil {
					set(cell, data[pos+y*w+x])
				}
			}
		}
		pos += w * h
	}
}

// collisionStreamStart reads the pointer table entry of room. ok is false if
// the room has no custom collision.
func (l *Layout) collisionStreamStart(r *rom.Rom, room RoomID) (start int, ok bool, err error) {
	ptr, err := r.Read24(l.CollisionPointers + int(room)*3)
	if err != nil {
		return 0, false, err
	}
	if ptr == 0 {
		return 0, false, nil
	}
	pc, err := r.Resolve(ptr)
	if err != nil {
		return 0, false, fmt.Errorf("room %v collision pointer $%06X: %w", room, ptr, err)
	}
	return pc, true, nil
}

// streamBound is how far a stream may extend, and the error kind reported
// when it goes further.
type streamBound struct {
	limit int
	kind  error
}

func (l *Layout) collisionBound(size, start int) (streamBound, error) {
	if !l.HasWaterFillRegion(size) {
		return streamBound{size, rom.ErrOutOfRange}, nil
	}
	reserved, ok, err := l.reservedAt(start)
	if err != nil {
		return streamBound{}, err
	}
	if ok {
		return streamBound{}, fmt.Errorf("%w: collision stream at 0x%06X lies inside the reserved water fill region %s",
			rom.ErrFailedPrecondition, start, reserved)
	}
	if start < l.SoftEnd() {
		return streamBound{l.SoftEnd(), rom.ErrFailedPrecondition}, nil
	}
	return streamBound{size, rom.ErrOutOfRange}, nil
}

// collisionStreamEnd returns the end of the stream at start.
func (l *Layout) collisionStreamEnd(r *rom.Rom, start int) (int, error) {
	b, err := l.collisionBound(r.Len(), start)
	if err != nil {
		return 0, err
	}
	return walkCollisionStream(r.Bytes(), start, b.limit, b.kind, nil)
}

// LoadCollisionMap decodes the custom collision of room. A room without
// custom collision (or a rom without the table) yields an empty map.
func (l *Layout) LoadCollisionMap(r *rom.Rom, room RoomID) (*CollisionMap, error) {
	if !r.Loaded() {
		return nil, rom.ErrNotLoaded
	}
	if err := checkRoom(room); err != nil {
		return nil, err
	}

	m := &CollisionMap{}
	if !l.HasCollisionTable(r.Len()) {
		return m, nil
	}

	start, ok, err := l.collisionStreamStart(r, room)
	if err != nil {
		return nil, err
	}
	if !ok {
		return m, nil
	}

	b, err := l.collisionBound(r.Len(), start)
	if err != nil {
		return nil, fmt.Errorf("room %v: %w", room, err)
	}

	var tiles [GridTiles]uint8
	end, err := walkCollisionStream(r.Bytes(), start, b.limit, b.kind, func(off int, v uint8) {
		tiles[off] = v
	})
	if err != nil {
		return nil, fmt.Errorf("room %v: %w", room, err)
	}

	log.ModCollision.DebugZ("collision decoded").
		Stringer("room", room).
		Hex24("start", uint32(start)).
		Int("len", end-start).
		End()

	m.Tiles = tiles
	m.HasData = true
	return m, nil
}

// EncodeCollision serializes m into a collision stream. Runs of at least
// three non-zero cells on a row become one-row rectangles, other non-zero
// cells are emitted in single tile mode. Zero cells are never emitted.
func EncodeCollision(m *CollisionMap) []byte {
	var rects, singles []byte

	for y := 0; y < GridSize; y++ {
		row := m.Tiles[y*GridSize : (y+1)*GridSize]
		for x := 0; x < GridSize; {
			if row[x] == 0 {
				x++
				continue
			}
			end := x
			for end < GridSize && row[end] != 0 {
				end++
			}

			off := y*GridSize + x
			if end-x >= minRectWidth {
				rects = append(rects, uint8(off), uint8(off>>8), uint8(end-x), 1)
				rects = append(rects, row[x:end]...)
			} else {
				for i := x; i < end; i++ {
					o := y*GridSize + i
					singles = append(singles, uint8(o), uint8(o>>8), row[i])
				}
			}
			x = end
		}
	}

	out := rects
	if len(singles) > 0 {
		out = append(out, 0xF0, 0xF0)
		out = append(out, singles...)
	}
	return append(out, 0xFF, 0xFF)
}

// CheckCollisionClearOfWaterFill verifies that no room's custom collision
// pointer or stream reaches into the reserved water fill region. Both tables
// are suspect if one does.
func (l *Layout) CheckCollisionClearOfWaterFill(r *rom.Rom) error {
	if !l.HasCollisionTable(r.Len()) {
		return nil
	}

	for room := RoomID(0); room < NumberOfRooms; room++ {
		start, ok, err := l.collisionStreamStart(r, room)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		_, reserved, err := l.reservedAt(start)
		if err != nil {
			return err
		}
		if reserved {
			return fmt.Errorf("%w: custom collision pointer for room %v overlaps the water fill reserved region (pc=0x%06X)",
				rom.ErrFailedPrecondition, room, start)
		}
		if _, err := l.collisionStreamEnd(r, start); err != nil {
			return fmt.Errorf("custom collision data for room %v: %w", room, err)
		}
	}
	return nil
}
