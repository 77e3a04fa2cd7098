package dungeon

import (
	"fmt"

	"github.com/go-faster/jx"

	"zroom/rom"
)

// DumpWaterFillJSON encodes zones as
//
//	{"version":1,"zones":[{"room_id":"0x25","mask":"0x02","offsets":[...]}]}
//
// sorted by room, offsets ascending and unique.
func DumpWaterFillJSON(zones []WaterFillZone) ([]byte, error) {
	sorted := make([]WaterFillZone, len(zones))
	copy(sorted, zones)
	sortZones(sorted)

	var e jx.Encoder
	e.SetIdent(2)
	e.Obj(func(e *jx.Encoder) {
		e.Field("version", func(e *jx.Encoder) { e.Int(interchangeVersion) })
		e.Field("zones", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, z := range sorted {
					e.Obj(func(e *jx.Encoder) {
						e.Field("room_id", func(e *jx.Encoder) { e.Str(z.Room.String()) })
						e.Field("mask", func(e *jx.Encoder) { e.Str(fmt.Sprintf("0x%02X", z.SRAMBitMask)) })
						e.Field("offsets", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, off := range sortOffsets(z.FillOffsets) {
									e.Int(int(off))
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

// ParseWaterFillJSON decodes the output of DumpWaterFillJSON. The keys
// "room", "sram_mask", "sram_bit_mask" and "fill_offsets" are accepted as
// well. A missing version is 1 and a missing mask is zero, to be allocated
// by NormalizeWaterFill. A room listed twice is rejected. The zones are
// returned as listed; normalization happens on write.
func ParseWaterFillJSON(data []byte) ([]WaterFillZone, error) {
	var (
		zones []WaterFillZone
		seen  = make(map[RoomID]bool)
	)

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, fmt.Errorf("%w: water fill json must be an object", rom.ErrInvalidArgument)
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			return decodeVersion(d)
		case "zones":
			return d.Arr(func(d *jx.Decoder) error {
				z, err := decodeWaterFillZone(d)
				if err != nil {
					return err
				}
				if seen[z.Room] {
					return fmt.Errorf("%w: duplicate room %v", rom.ErrInvalidArgument, z.Room)
				}
				seen[z.Room] = true
				zones = append(zones, z)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, invalidJSON(err)
	}
	return zones, nil
}

func decodeWaterFillZone(d *jx.Decoder) (WaterFillZone, error) {
	var (
		z       WaterFillZone
		hasRoom bool
	)

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "room_id", "room":
			room, err := decodeRoom(d)
			if err != nil {
				return err
			}
			z.Room, hasRoom = room, true
			return nil
		case "mask", "sram_mask", "sram_bit_mask":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeInt(d)
			if err != nil {
				return err
			}
			if v < 0 || v > 0xFF {
				return fmt.Errorf("%w: sram mask %d does not fit a byte", rom.ErrInvalidArgument, v)
			}
			z.SRAMBitMask = uint8(v)
			return nil
		case "offsets", "fill_offsets":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := decodeInt(d)
				if err != nil {
					return err
				}
				if v < 0 || v >= GridTiles {
					return fmt.Errorf("%w: fill offset %d outside the 64x64 grid", rom.ErrInvalidArgument, v)
				}
				z.FillOffsets = append(z.FillOffsets, uint16(v))
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return z, err
	}
	if !hasRoom {
		return z, fmt.Errorf("%w: zone has no room_id", rom.ErrInvalidArgument)
	}
	return z, nil
}
