package dungeon

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"zroom/rom"
)

func TestParseCollisionJSON(t *testing.T) {
	in := `{"version":1,"rooms":[{"room_id":"0x25","tiles":[[65,8],[66,"0xB7"]]}]}`

	got, err := ParseCollisionJSON([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []CollisionRoom{{Room: 0x25, Tiles: []CollisionTile{{65, 8}, {66, 183}}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rooms differ (-want +got):\n%s", diff)
	}
}

func TestParseCollisionJSONLastWriteWins(t *testing.T) {
	in := `{"version":"1","extra":{"a":[1,2]},"rooms":[{"room":37,"tiles":[[70,1],[5,1],[5,"2"],[3,0]]}]}`

	got, err := ParseCollisionJSON([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []CollisionRoom{{Room: 37, Tiles: []CollisionTile{{5, 2}, {70, 1}}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rooms differ (-want +got):\n%s", diff)
	}
}

func TestParseCollisionJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not an object", `[1,2]`},
		{"wrong version", `{"version":2,"rooms":[]}`},
		{"duplicate room", `{"version":1,"rooms":[{"room_id":1,"tiles":[]},{"room_id":"0x01","tiles":[]}]}`},
		{"room out of range", `{"version":1,"rooms":[{"room_id":"0x128","tiles":[]}]}`},
		{"missing room", `{"version":1,"rooms":[{"tiles":[[1,1]]}]}`},
		{"offset outside grid", `{"version":1,"rooms":[{"room_id":1,"tiles":[[4096,1]]}]}`},
		{"value too big", `{"version":1,"rooms":[{"room_id":1,"tiles":[[1,256]]}]}`},
		{"negative value", `{"version":1,"rooms":[{"room_id":1,"tiles":[[1,-1]]}]}`},
		{"bad hex", `{"version":1,"rooms":[{"room_id":"0xZZ","tiles":[]}]}`},
		{"short tile", `{"version":1,"rooms":[{"room_id":1,"tiles":[[1]]}]}`},
		{"truncated", `{"version":1,"rooms":[`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCollisionJSON([]byte(tt.in))
			if !errors.Is(err, rom.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestParseCollisionJSONDefaultVersion(t *testing.T) {
	got, err := ParseCollisionJSON([]byte(`{"rooms":[{"room_id":2,"tiles":[[1,1]]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	want := []CollisionRoom{{Room: 2, Tiles: []CollisionTile{{Offset: 1, Value: 1}}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rooms differ (-want +got):\n%s", diff)
	}
}

func TestCollisionJSONRoundTrip(t *testing.T) {
	rooms := []CollisionRoom{
		{Room: 0x127, Tiles: []CollisionTile{{4095, 0xFF}}},
		{Room: 0x25, Tiles: []CollisionTile{{65, 8}, {66, 183}}},
	}

	out, err := DumpCollisionJSON(rooms)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte(`"0x25"`)) {
		t.Errorf("room id not written as hex string:\n%s", out)
	}

	got, err := ParseCollisionJSON(out)
	if err != nil {
		t.Fatalf("parse dump: %v\n%s", err, out)
	}
	want := []CollisionRoom{rooms[1], rooms[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rooms differ (-want +got):\n%s", diff)
	}
}

func TestDumpCollisionJSONRejectsDuplicates(t *testing.T) {
	_, err := DumpCollisionJSON([]CollisionRoom{{Room: 1}, {Room: 1}})
	if !errors.Is(err, rom.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestParseWaterFillJSON(t *testing.T) {
	in := `{
		"version": 1,
		"zones": [
			{"room_id": "0x25", "mask": "0x02", "offsets": [300, 100, 100]},
			{"room": 39, "sram_bit_mask": 1, "fill_offsets": ["0x10"]},
			{"room_id": 16, "sram_mask": null, "offsets": []},
			{"room_id": 17}
		]
	}`

	got, err := ParseWaterFillJSON([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []WaterFillZone{
		{Room: 0x25, SRAMBitMask: 0x02, FillOffsets: []uint16{300, 100, 100}},
		{Room: 0x27, SRAMBitMask: 0x01, FillOffsets: []uint16{0x10}},
		{Room: 0x10},
		{Room: 0x11},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zones differ (-want +got):\n%s", diff)
	}
}

func TestParseWaterFillJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrong version", `{"version":0,"zones":[]}`},
		{"no room", `{"version":1,"zones":[{"mask":1}]}`},
		{"mask too big", `{"version":1,"zones":[{"room_id":1,"mask":256}]}`},
		{"offset outside grid", `{"version":1,"zones":[{"room_id":1,"offsets":[4096]}]}`},
		{"room out of range", `{"version":1,"zones":[{"room_id":296}]}`},
		{"duplicate room", `{"version":1,"zones":[{"room_id":"0x25","mask":1,"offsets":[1]},{"room_id":37,"mask":2,"offsets":[2]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWaterFillJSON([]byte(tt.in))
			if !errors.Is(err, rom.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestParseWaterFillJSONDefaultVersion(t *testing.T) {
	got, err := ParseWaterFillJSON([]byte(`{"zones":[{"room_id":"0x25","mask":2,"offsets":[7]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	want := []WaterFillZone{{Room: 0x25, SRAMBitMask: 0x02, FillOffsets: []uint16{7}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zones differ (-want +got):\n%s", diff)
	}
}

func TestWaterFillJSONRoundTrip(t *testing.T) {
	zones := []WaterFillZone{
		{Room: 0x27, SRAMBitMask: 0x01, FillOffsets: []uint16{9, 3}},
		{Room: 0x25, SRAMBitMask: 0x02, FillOffsets: []uint16{1, 2, 3}},
	}
	out, err := DumpWaterFillJSON(zones)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseWaterFillJSON(out)
	if err != nil {
		t.Fatalf("parse dump: %v\n%s", err, out)
	}
	want := []WaterFillZone{
		{Room: 0x25, SRAMBitMask: 0x02, FillOffsets: []uint16{1, 2, 3}},
		{Room: 0x27, SRAMBitMask: 0x01, FillOffsets: []uint16{3, 9}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zones differ (-want +got):\n%s", diff)
	}
}
