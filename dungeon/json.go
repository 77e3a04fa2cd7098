package dungeon

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-faster/jx"

	"zroom/rom"
)

const interchangeVersion = 1

// decodeInt reads a JSON number, or a string holding an integer in Go
// literal syntax: decimal, 0x hex, and also 0b/0o prefixes and _ separators.
func decodeInt(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.Number:
		return d.Int()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", rom.ErrInvalidArgument, s)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: expected integer, got %v", rom.ErrInvalidArgument, d.Next())
	}
}

// decodeRoom reads a room id and checks it.
func decodeRoom(d *jx.Decoder) (RoomID, error) {
	v, err := decodeInt(d)
	if err != nil {
		return 0, err
	}
	room := RoomID(v)
	return room, checkRoom(room)
}

// decodeVersion checks the top-level version field.
func decodeVersion(d *jx.Decoder) error {
	v, err := decodeInt(d)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if v != interchangeVersion {
		return fmt.Errorf("%w: unsupported version %d", rom.ErrInvalidArgument, v)
	}
	return nil
}

func invalidJSON(err error) error {
	if err == nil {
		return nil
	}
	if isKind(err) {
		return err
	}
	return fmt.Errorf("%w: %v", rom.ErrInvalidArgument, err)
}

// isKind reports whether err already carries one of the rom error kinds.
func isKind(err error) bool {
	for _, k := range []error{
		rom.ErrInvalidArgument, rom.ErrOutOfRange, rom.ErrFailedPrecondition,
		rom.ErrPermissionDenied, rom.ErrResourceExhausted, rom.ErrAlreadyExists,
		rom.ErrNotLoaded,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
