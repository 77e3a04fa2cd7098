package dungeon

import (
	"testing"

	"zroom/rom"
)

const testRomSize = 0x130000

func newTestRom(t *testing.T) *rom.Rom {
	t.Helper()
	return rom.New("test.sfc", make([]byte, testRomSize))
}

func snapshot(r *rom.Rom) []byte {
	return append([]byte(nil), r.Bytes()...)
}

// putCollision points room at pc and stores stream there.
func putCollision(t *testing.T, r *rom.Rom, l *Layout, room RoomID, pc int, stream []byte) {
	t.Helper()
	if err := r.Write24(l.CollisionPointers+int(room)*3, rom.PcToSnes(uint32(pc))); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteBytes(pc, stream); err != nil {
		t.Fatal(err)
	}
}

func collisionPointer(t *testing.T, r *rom.Rom, l *Layout, room RoomID) int {
	t.Helper()
	start, ok, err := l.collisionStreamStart(r, room)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		return 0
	}
	return start
}

func mustLoadCollision(t *testing.T, r *rom.Rom, l *Layout, room RoomID) *CollisionMap {
	t.Helper()
	m, err := l.LoadCollisionMap(r, room)
	if err != nil {
		t.Fatalf("LoadCollisionMap(%v): %v", room, err)
	}
	return m
}

func allZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
