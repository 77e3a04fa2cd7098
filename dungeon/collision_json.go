package dungeon

import (
	"fmt"
	"sort"

	"github.com/go-faster/jx"

	"zroom/rom"
)

// DumpCollisionJSON encodes rooms as
//
//	{"version":1,"rooms":[{"room_id":"0x25","tiles":[[65,8],...]}]}
//
// Rooms are sorted by id and zero cells are left out.
func DumpCollisionJSON(rooms []CollisionRoom) ([]byte, error) {
	sorted := make([]CollisionRoom, len(rooms))
	copy(sorted, rooms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Room < sorted[j].Room })

	for i, cr := range sorted {
		if err := checkRoom(cr.Room); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].Room == cr.Room {
			return nil, fmt.Errorf("%w: room %v listed twice", rom.ErrInvalidArgument, cr.Room)
		}
	}

	var e jx.Encoder
	e.SetIdent(2)
	e.Obj(func(e *jx.Encoder) {
		e.Field("version", func(e *jx.Encoder) { e.Int(interchangeVersion) })
		e.Field("rooms", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, cr := range sorted {
					e.Obj(func(e *jx.Encoder) {
						e.Field("room_id", func(e *jx.Encoder) { e.Str(cr.Room.String()) })
						e.Field("tiles", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, t := range cr.Tiles {
									if t.Value == 0 {
										continue
									}
									e.Arr(func(e *jx.Encoder) {
										e.Int(int(t.Offset))
										e.Int(int(t.Value))
									})
								}
							})
						})
					})
				}
			})
		})
	})
	return e.Bytes(), nil
}

// ParseCollisionJSON decodes the output of DumpCollisionJSON. A missing
// version is 1. Room ids, offsets and values may be numbers or strings. A room listed
// twice, an offset outside the grid or a value above 255 is rejected. When an
// offset repeats within a room the last value wins.
func ParseCollisionJSON(data []byte) ([]CollisionRoom, error) {
	var (
		rooms []CollisionRoom
		seen  = make(map[RoomID]bool)
	)

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, fmt.Errorf("%w: collision json must be an object", rom.ErrInvalidArgument)
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			return decodeVersion(d)
		case "rooms":
			return d.Arr(func(d *jx.Decoder) error {
				cr, err := decodeCollisionRoom(d)
				if err != nil {
					return err
				}
				if seen[cr.Room] {
					return fmt.Errorf("%w: duplicate room %v", rom.ErrInvalidArgument, cr.Room)
				}
				seen[cr.Room] = true
				rooms = append(rooms, cr)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, invalidJSON(err)
	}
	return rooms, nil
}

func decodeCollisionRoom(d *jx.Decoder) (CollisionRoom, error) {
	var (
		cr      CollisionRoom
		hasRoom bool
		cells   = make(map[uint16]uint8)
	)

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "room_id", "room":
			room, err := decodeRoom(d)
			if err != nil {
				return err
			}
			cr.Room, hasRoom = room, true
			return nil
		case "tiles":
			return d.Arr(func(d *jx.Decoder) error {
				var pair []int
				err := d.Arr(func(d *jx.Decoder) error {
					v, err := decodeInt(d)
					pair = append(pair, v)
					return err
				})
				if err != nil {
					return err
				}
				if len(pair) != 2 {
					return fmt.Errorf("%w: tile must be [offset, value], got %d element(s)", rom.ErrInvalidArgument, len(pair))
				}
				off, val := pair[0], pair[1]
				if off < 0 || off >= GridTiles {
					return fmt.Errorf("%w: tile offset %d outside the 64x64 grid", rom.ErrInvalidArgument, off)
				}
				if val < 0 || val > 0xFF {
					return fmt.Errorf("%w: tile value %d at offset %d does not fit a byte", rom.ErrInvalidArgument, val, off)
				}
				cells[uint16(off)] = uint8(val)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return cr, err
	}
	if !hasRoom {
		return cr, fmt.Errorf("%w: room entry has no room_id", rom.ErrInvalidArgument)
	}

	for off, v := range cells {
		if v != 0 {
			cr.Tiles = append(cr.Tiles, CollisionTile{Offset: off, Value: v})
		}
	}
	sort.Slice(cr.Tiles, func(i, j int) bool { return cr.Tiles[i].Offset < cr.Tiles[j].Offset })
	return cr, nil
}
