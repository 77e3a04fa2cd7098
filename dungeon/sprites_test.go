package dungeon

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"zroom/rom"
)

const (
	testSpriteTable = 0x4D62E // $09:D62E
	testSpriteData  = testSpriteTable + NumberOfRooms*2
	testSpriteBank  = 0x50000
)

func newSpriteRom(t *testing.T) (*rom.Rom, *StreamTable) {
	t.Helper()
	r := newTestRom(t)
	l := DefaultLayout
	if err := r.Write16(l.SpritePointerLocator, 0xD62E); err != nil {
		t.Fatal(err)
	}
	st, err := l.SpriteTable(r)
	if err != nil {
		t.Fatal(err)
	}
	return r, st
}

func putSprites(t *testing.T, r *rom.Rom, room RoomID, pc int, stream []byte) {
	t.Helper()
	if err := r.Write16(testSpriteTable+int(room)*2, uint16(rom.PcToSnes(uint32(pc)))); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteBytes(pc, stream); err != nil {
		t.Fatal(err)
	}
}

func spritePointer(t *testing.T, st *StreamTable, room RoomID) int {
	t.Helper()
	pc, ok, err := st.Pointer(room)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		return 0
	}
	return pc
}

var (
	streamA = []byte{0x00, 1, 2, 3, 0xFF}          // room 0
	streamB = []byte{0x01, 4, 5, 6, 7, 8, 9, 0xFF} // room 1
)

// twoRooms lays out room 0 then room 1 right after the pointer table.
func twoRooms(t *testing.T) (*rom.Rom, *StreamTable) {
	t.Helper()
	r, st := newSpriteRom(t)
	putSprites(t, r, 0, testSpriteData, streamA)
	putSprites(t, r, 1, testSpriteData+len(streamA), streamB)
	return r, st
}

func TestSpriteTable(t *testing.T) {
	_, st := newSpriteRom(t)
	if st.DataStart() != testSpriteData {
		t.Errorf("DataStart = 0x%06X, want 0x%06X", st.DataStart(), testSpriteData)
	}
	if st.BankEnd() != testSpriteBank {
		t.Errorf("BankEnd = 0x%06X, want 0x%06X", st.BankEnd(), testSpriteBank)
	}

	end, err := st.FindMaxUsedEnd()
	if err != nil {
		t.Fatal(err)
	}
	if end != testSpriteData {
		t.Errorf("FindMaxUsedEnd on empty table = 0x%06X, want data start", end)
	}
}

func TestSpriteStream(t *testing.T) {
	_, st := twoRooms(t)

	got, err := st.Stream(1)
	if err != nil {
		t.Fatal(err)
	}
	want := SpriteStream{SortMode: 1, Entries: []SpriteEntry{{4, 5, 6}, {7, 8, 9}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stream differs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(streamB, got.Bytes()); diff != "" {
		t.Errorf("bytes differ (-want +got):\n%s", diff)
	}

	end, err := st.FindMaxUsedEnd()
	if err != nil {
		t.Fatal(err)
	}
	if want := testSpriteData + len(streamA) + len(streamB); end != want {
		t.Errorf("FindMaxUsedEnd = 0x%06X, want 0x%06X", end, want)
	}
}

func TestSpriteStreamUnterminated(t *testing.T) {
	r, st := newSpriteRom(t)
	putSprites(t, r, 5, testSpriteBank-4, []byte{0, 1, 2, 3})

	if _, err := st.Stream(5); !errors.Is(err, rom.ErrFailedPrecondition) {
		t.Errorf("err = %v, want ErrFailedPrecondition", err)
	}
}

func TestParseSpritePayload(t *testing.T) {
	got, err := ParseSpritePayload([]byte{1, 2, 3, 4, 5, 6, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]SpriteEntry{{1, 2, 3}, {4, 5, 6}}, got); diff != "" {
		t.Errorf("entries differ (-want +got):\n%s", diff)
	}

	for _, p := range [][]byte{
		nil,
		{1, 2, 0xFF},
		{1, 2, 3, 4},
		{0xFF, 2, 3, 0xFF},
	} {
		if _, err := ParseSpritePayload(p); !errors.Is(err, rom.ErrInvalidArgument) {
			t.Errorf("payload % X: err = %v", p, err)
		}
	}
}

func TestRelocateReclaimsExclusiveSlot(t *testing.T) {
	r, st := twoRooms(t)
	cursor := testSpriteData + len(streamA) + len(streamB)

	payload := []byte{0x10, 0x11, 0x12, 0x20, 0x21, 0x22, 0xFF}
	dest, err := st.Relocate(0, payload)
	if err != nil {
		t.Fatal(err)
	}
	if dest != cursor {
		t.Errorf("relocated to 0x%06X, want 0x%06X", dest, cursor)
	}
	if got := spritePointer(t, st, 0); got != cursor {
		t.Errorf("room 0 points at 0x%06X, want 0x%06X", got, cursor)
	}

	want := append([]byte{0x00}, payload...)
	if diff := cmp.Diff(want, r.Bytes()[dest:dest+len(want)]); diff != "" {
		t.Errorf("new stream differs (-want +got):\n%s", diff)
	}
	if !allZero(r.Bytes()[testSpriteData : testSpriteData+len(streamA)]) {
		t.Errorf("old slot not zero-filled")
	}
	if r.FenceDepth() != 0 {
		t.Errorf("fence left active")
	}

	s, err := st.Stream(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(streamB, s.Bytes()); diff != "" {
		t.Errorf("room 1 changed (-want +got):\n%s", diff)
	}
}

func TestRelocateKeepsAliasedSlot(t *testing.T) {
	r, st := twoRooms(t)
	putSprites(t, r, 2, testSpriteData, streamA)

	if _, err := st.Relocate(0, []byte{9, 9, 9, 0xFF}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(streamA, r.Bytes()[testSpriteData:testSpriteData+len(streamA)]) {
		t.Errorf("shared slot modified")
	}
	s, err := st.Stream(2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(streamA, s.Bytes()); diff != "" {
		t.Errorf("room 2 changed (-want +got):\n%s", diff)
	}
}

// sharedTail lays out room 0 with two entries and room 1 starting at room
// 0's second entry, so that both streams end on the same terminator.
func sharedTail(t *testing.T) (*rom.Rom, *StreamTable, []byte) {
	t.Helper()
	r, st := newSpriteRom(t)
	outer := []byte{0x00, 1, 2, 3, 4, 5, 6, 0xFF}
	putSprites(t, r, 0, testSpriteData, outer)
	if err := r.Write16(testSpriteTable+2, uint16(rom.PcToSnes(uint32(testSpriteData+3)))); err != nil {
		t.Fatal(err)
	}
	return r, st, outer
}

func TestRelocateKeepsSharedTail(t *testing.T) {
	r, st, outer := sharedTail(t)

	if _, err := st.Relocate(1, []byte{9, 9, 9, 0xFF}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(outer, r.Bytes()[testSpriteData:testSpriteData+len(outer)]); diff != "" {
		t.Errorf("room 0 bytes modified (-want +got):\n%s", diff)
	}
	s, err := st.Stream(0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(outer, s.Bytes()); diff != "" {
		t.Errorf("room 0 changed (-want +got):\n%s", diff)
	}
	s, err = st.Stream(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]SpriteEntry{{9, 9, 9}}, s.Entries); diff != "" {
		t.Errorf("room 1 entries differ (-want +got):\n%s", diff)
	}
	if s.SortMode != 0x03 {
		t.Errorf("room 1 sort mode = 0x%02X, want 0x03", s.SortMode)
	}
}

func TestSpriteSaveKeepsSharedTail(t *testing.T) {
	r, st, outer := sharedTail(t)

	small := SpriteStream{SortMode: 2, Entries: []SpriteEntry{{7, 7, 7}}}
	dest, err := st.Save(1, small)
	if err != nil {
		t.Fatal(err)
	}
	if dest == testSpriteData+3 {
		t.Errorf("room 1 saved in place inside room 0")
	}
	if diff := cmp.Diff(outer, r.Bytes()[testSpriteData:testSpriteData+len(outer)]); diff != "" {
		t.Errorf("room 0 bytes modified (-want +got):\n%s", diff)
	}
	s, err := st.Stream(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(small, s); diff != "" {
		t.Errorf("room 1 differs (-want +got):\n%s", diff)
	}
}

func TestRelocateExhausted(t *testing.T) {
	r, st := twoRooms(t)

	free, err := st.FreeBytes()
	if err != nil {
		t.Fatal(err)
	}
	payload := append(bytes.Repeat([]byte{1, 2, 3}, free/3+1), 0xFF)

	before := snapshot(r)
	if _, err := st.Relocate(0, payload); !errors.Is(err, rom.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
	if !bytes.Equal(before, r.Bytes()) {
		t.Errorf("rom modified by failed relocation")
	}

	if _, err := st.Relocate(0, []byte{0xFF, 0xFF}); !errors.Is(err, rom.ErrInvalidArgument) {
		t.Errorf("bad payload: err = %v", err)
	}
}

func TestSpriteSave(t *testing.T) {
	r, st := twoRooms(t)

	// fits: room 1 shrinks in place
	small := SpriteStream{SortMode: 1, Entries: []SpriteEntry{{7, 7, 7}}}
	dest, err := st.Save(1, small)
	if err != nil {
		t.Fatal(err)
	}
	if want := testSpriteData + len(streamA); dest != want {
		t.Errorf("room 1 saved at 0x%06X, want in place at 0x%06X", dest, want)
	}

	// does not fit before room 1: relocated with the new sort mode
	grown := SpriteStream{SortMode: 1, Entries: []SpriteEntry{{1, 2, 3}, {4, 5, 6}}}
	dest, err = st.Save(0, grown)
	if err != nil {
		t.Fatal(err)
	}
	if dest == testSpriteData {
		t.Errorf("room 0 grew in place over room 1")
	}
	s, err := st.Stream(0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(grown, s); diff != "" {
		t.Errorf("room 0 differs (-want +got):\n%s", diff)
	}
	s, err = st.Stream(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(small, s); diff != "" {
		t.Errorf("room 1 differs (-want +got):\n%s", diff)
	}

	// a room without a stream gets a new one
	dest, err = st.Save(3, SpriteStream{})
	if err != nil {
		t.Fatal(err)
	}
	if got := spritePointer(t, st, 3); got != dest {
		t.Errorf("room 3 points at 0x%06X, want 0x%06X", got, dest)
	}
	if r.Bytes()[dest+1] != 0xFF {
		t.Errorf("empty stream not terminated")
	}

	if _, err := st.Save(4, SpriteStream{Entries: []SpriteEntry{{0xFF, 0, 0}}}); !errors.Is(err, rom.ErrInvalidArgument) {
		t.Errorf("entry starting with terminator: err = %v", err)
	}
}
