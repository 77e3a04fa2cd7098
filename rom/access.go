package rom

import (
	"encoding/binary"
	"fmt"
)

func (r *Rom) bounds(addr, size int, op string) error {
	if addr < 0 || size < 0 || addr+size > len(r.data) {
		return fmt.Errorf("%w: %s of %d byte(s) at 0x%06X (rom size 0x%06X)", ErrOutOfRange, op, size, addr, len(r.data))
	}
	return nil
}

func (r *Rom) Read8(addr int) (uint8, error) {
	if err := r.bounds(addr, 1, "Read8"); err != nil {
		return 0, err
	}
	return r.data[addr], nil
}

func (r *Rom) Read16(addr int) (uint16, error) {
	if err := r.bounds(addr, 2, "Read16"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.data[addr:]), nil
}

// Read24 reads a little-endian 24-bit value (a long pointer).
func (r *Rom) Read24(addr int) (uint32, error) {
	if err := r.bounds(addr, 3, "Read24"); err != nil {
		return 0, err
	}
	return uint32(r.data[addr]) | uint32(r.data[addr+1])<<8 | uint32(r.data[addr+2])<<16, nil
}

// Slice returns a copy of n bytes starting at addr.
func (r *Rom) Slice(addr, n int) ([]byte, error) {
	if err := r.bounds(addr, n, "Slice"); err != nil {
		return nil, err
	}
	return append([]byte(nil), r.data[addr:addr+n]...), nil
}

func (r *Rom) Write8(addr int, val uint8) error {
	return r.write(addr, []byte{val}, "Write8")
}

func (r *Rom) Write16(addr int, val uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], val)
	return r.write(addr, buf[:], "Write16")
}

func (r *Rom) Write24(addr int, val uint32) error {
	return r.write(addr, []byte{uint8(val), uint8(val >> 8), uint8(val >> 16)}, "Write24")
}

// WriteBytes copies p into the image at addr.
func (r *Rom) WriteBytes(addr int, p []byte) error {
	return r.write(addr, p, "WriteBytes")
}

// Fill sets n bytes starting at addr to val.
func (r *Rom) Fill(addr, n int, val uint8) error {
	if n < 0 {
		return fmt.Errorf("%w: Fill of %d bytes", ErrInvalidArgument, n)
	}
	buf := make([]byte, n)
	if val != 0 {
		for i := range buf {
			buf[i] = val
		}
	}
	return r.write(addr, buf, "Fill")
}

// write is the only path mutating the image: bounds and fences are checked
// before any byte is touched.
func (r *Rom) write(addr int, p []byte, op string) error {
	if !r.Loaded() {
		return ErrNotLoaded
	}
	if len(p) == 0 {
		return nil
	}
	if err := r.bounds(addr, len(p), op); err != nil {
		return err
	}
	if err := r.check(addr, len(p), op); err != nil {
		return err
	}
	copy(r.data[addr:], p)
	r.record(addr, len(p))
	return nil
}
