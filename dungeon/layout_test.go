package dungeon

import (
	"errors"
	"testing"

	"zroom/rom"
)

func TestLayoutValidate(t *testing.T) {
	if err := DefaultLayout.Validate(); err != nil {
		t.Fatalf("default layout: %v", err)
	}

	tests := []struct {
		name   string
		modify func(l *Layout)
		want   error
	}{
		{"water fill before collision data", func(l *Layout) { l.WaterFillStart, l.WaterFillEnd = 0x128420, 0x128440 }, rom.ErrInvalidArgument},
		{"data before pointer table end", func(l *Layout) { l.CollisionData = l.CollisionPointers + 3 }, rom.ErrFailedPrecondition},
		{"empty water fill region", func(l *Layout) { l.WaterFillEnd = l.WaterFillStart }, rom.ErrInvalidArgument},
		{"sprite bank in wram", func(l *Layout) { l.SpriteBank = 0x7E }, rom.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLayout
			tt.modify(&l)
			if err := l.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLayoutRegions(t *testing.T) {
	m, err := DefaultLayout.Regions()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		addr  int
		owner string
	}{
		{0x128090, regionCollisionPointers},
		{0x128407, regionCollisionPointers},
		{0x128408, ""},
		{0x128450, regionCollisionData},
		{0x12FDFF, regionCollisionData},
		{0x12FE00, regionWaterFill},
		{0x12FFFF, regionWaterFill},
		{0x130000, ""},
	}
	for _, tt := range tests {
		got, ok := m.Owner(tt.addr)
		if tt.owner == "" {
			if ok {
				t.Errorf("0x%06X owned by %s, want free", tt.addr, got.Label)
			}
			continue
		}
		if !ok || got.Label != tt.owner {
			t.Errorf("0x%06X owner = %q (%v), want %q", tt.addr, got.Label, ok, tt.owner)
		}
	}
}

func TestHasCollisionSupport(t *testing.T) {
	l := DefaultLayout
	if l.HasCollisionTable(0x100000) || l.HasWaterFillRegion(0x100000) {
		t.Errorf("1MB rom reported as expanded")
	}
	if !l.HasCollisionWriteSupport(0x200000) || !l.HasWaterFillRegion(0x200000) {
		t.Errorf("2MB rom reported as vanilla")
	}
}
