// Package dungeon implements the per-room dungeon tables stored in the rom:
// custom collision maps, the water fill zone table and the sprite streams.
//
// All functions take the rom explicitly and write through write fences
// scoped to the exact bytes they own.
package dungeon

import (
	"fmt"

	"zroom/rom"
)

const (
	NumberOfRooms = 0x128

	GridSize  = 64
	GridTiles = GridSize * GridSize

	MaxWaterFillZones = 8
	MaxZoneTiles      = 255
)

// RoomID identifies a dungeon room (supertile).
type RoomID int

func (id RoomID) Valid() bool { return id >= 0 && id < NumberOfRooms }

func (id RoomID) String() string { return fmt.Sprintf("0x%02X", int(id)) }

func checkRoom(id RoomID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: room id %d outside [0, 0x%X)", rom.ErrInvalidArgument, int(id), NumberOfRooms)
	}
	return nil
}

// Layout gives the file offsets of the tables handled by this package.
type Layout struct {
	CollisionPointers int `toml:"collision_pointers"` // 3 bytes per room
	CollisionData     int `toml:"collision_data"`     // first byte of collision streams
	WaterFillStart    int `toml:"water_fill_start"`   // reserved region, also the collision soft end
	WaterFillEnd      int `toml:"water_fill_end"`

	SpritePointerLocator int `toml:"sprite_pointer_locator"` // holds the 16-bit address of the sprite pointer table
	SpriteBank           int `toml:"sprite_bank"`
}

// DefaultLayout is the layout of an expanded rom with the custom collision
// bank at $25.
var DefaultLayout = Layout{
	CollisionPointers: 0x128090,
	CollisionData:     0x128450,
	WaterFillStart:    0x12FE00,
	WaterFillEnd:      0x130000,

	SpritePointerLocator: 0x4C298,
	SpriteBank:           0x09,
}

const (
	regionCollisionPointers = "CollisionPointers"
	regionCollisionData     = "CollisionData"
	regionWaterFill         = "WaterFill"
)

// Regions returns the ownership map of the collision bank. Building it is
// what proves the collision tables and the water fill region do not overlap.
func (l *Layout) Regions() (*rom.RegionMap, error) {
	m := &rom.RegionMap{}
	if err := m.Claim(l.CollisionPointers, l.CollisionPointers+NumberOfRooms*3, regionCollisionPointers); err != nil {
		return nil, err
	}
	if err := m.Claim(l.CollisionData, l.SoftEnd(), regionCollisionData); err != nil {
		return nil, err
	}
	if err := m.Claim(l.WaterFillStart, l.WaterFillEnd, regionWaterFill); err != nil {
		return nil, err
	}
	return m, nil
}

// reservedAt returns the water fill extent if the ownership map gives addr
// to it.
func (l *Layout) reservedAt(addr int) (rom.WriteRange, bool, error) {
	m, err := l.Regions()
	if err != nil {
		return rom.WriteRange{}, false, fmt.Errorf("invalid layout: %w", err)
	}
	e, ok := m.Owner(addr)
	if !ok || e.Label != regionWaterFill {
		return rom.WriteRange{}, false, nil
	}
	return e, true, nil
}

// Validate checks the layout is self-consistent.
func (l *Layout) Validate() error {
	if _, err := l.Regions(); err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}
	if l.SpriteBank < 0 || l.SpriteBank >= 0x7E {
		return fmt.Errorf("invalid layout: %w: sprite bank $%02X", rom.ErrInvalidArgument, l.SpriteBank)
	}
	if l.SpritePointerLocator < 0 {
		return fmt.Errorf("invalid layout: %w: sprite pointer locator 0x%X", rom.ErrInvalidArgument, l.SpritePointerLocator)
	}
	return nil
}

// SoftEnd is the first byte collision streams may not reach: the start of
// the water fill region.
func (l *Layout) SoftEnd() int { return l.WaterFillStart }

// WaterFillRegion returns the reserved water fill extent.
func (l *Layout) WaterFillRegion() rom.WriteRange {
	return rom.WriteRange{Start: l.WaterFillStart, End: l.WaterFillEnd, Label: regionWaterFill}
}

func (l *Layout) waterFillSize() int { return l.WaterFillEnd - l.WaterFillStart }

// HasCollisionTable reports whether a rom of size bytes holds the custom
// collision pointer table (vanilla roms don't).
func (l *Layout) HasCollisionTable(size int) bool {
	return l.CollisionPointers+NumberOfRooms*3 <= size
}

// HasCollisionWriteSupport reports whether a rom of size bytes holds the whole
// collision data region.
func (l *Layout) HasCollisionWriteSupport(size int) bool {
	return l.HasCollisionTable(size) && l.SoftEnd() <= size
}

// HasWaterFillRegion reports whether a rom of size bytes holds the reserved
// water fill region.
func (l *Layout) HasWaterFillRegion(size int) bool {
	return l.WaterFillEnd <= size
}
