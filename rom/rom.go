// Package rom holds a cartridge image in memory and guards every mutation of
// it with write fences.
package rom

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/alttpo/snes"

	"zroom/log"
)

const (
	copierHeaderSize = 512
	headerStart      = 0x7FB0
	headerEnd        = 0x8000
)

// Rom is an owned, resizable cartridge image plus the stack of write fences
// currently active on it.
//
// A Rom is not safe for concurrent use; callers sharing one instance between
// goroutines must serialize access themselves.
type Rom struct {
	name   string
	data   []byte
	fences []*WriteFence

	header       snes.Header
	hasHeader    bool
	copierHeader bool
}

// Open loads a rom from file.
func Open(path string) (*Rom, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rom := &Rom{name: path}
	if _, err := rom.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rom, nil
}

// New wraps data (which the Rom takes ownership of) into a Rom.
func New(name string, data []byte) *Rom {
	rom := &Rom{name: name, data: data}
	rom.readHeader()
	return rom
}

// ReadFrom implements io.ReaderFrom interface. A 512 bytes copier header, if
// present, is stripped.
func (r *Rom) ReadFrom(rd io.Reader) (int64, error) {
	if len(r.fences) != 0 {
		return 0, fmt.Errorf("%w: cannot reload while %d write fence(s) are active", ErrPermissionDenied, len(r.fences))
	}

	buf, err := io.ReadAll(rd)
	if err != nil {
		return 0, err
	}
	n := int64(len(buf))
	if len(buf) == 0 {
		return n, fmt.Errorf("%w: empty image", ErrNotLoaded)
	}

	r.copierHeader = false
	if len(buf)%0x8000 == copierHeaderSize {
		buf = buf[copierHeaderSize:]
		r.copierHeader = true
	}
	r.data = buf
	r.readHeader()

	log.ModRom.DebugZ("rom loaded").
		String("name", r.name).
		Int("size", len(r.data)).
		Bool("copier", r.copierHeader).
		End()
	return n, nil
}

func (r *Rom) readHeader() {
	r.hasHeader = false
	if len(r.data) < headerEnd {
		return
	}
	var h snes.Header
	if err := h.ReadHeader(bytes.NewReader(r.data[headerStart:headerEnd])); err != nil {
		log.ModRom.WarnZ("unreadable cartridge header").Error("err", err).End()
		return
	}
	r.header = h
	r.hasHeader = true
}

// WriteTo implements io.WriterTo interface.
func (r *Rom) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}

// Save writes the image to path.
func (r *Rom) Save(path string) error {
	if !r.Loaded() {
		return ErrNotLoaded
	}
	return os.WriteFile(path, r.data, 0644)
}

// Loaded reports whether the rom holds any data.
func (r *Rom) Loaded() bool { return r != nil && len(r.data) > 0 }

// Filename is the path (or name) the rom was loaded from.
func (r *Rom) Filename() string { return r.name }

// Len returns the image size in bytes.
func (r *Rom) Len() int { return len(r.data) }

// Bytes gives direct read access to the image. It must not be modified: all
// writes go through the Write* methods so fences are honoured.
func (r *Rom) Bytes() []byte { return r.data }

// HadCopierHeader reports whether a copier header was stripped on load.
func (r *Rom) HadCopierHeader() bool { return r.copierHeader }

// Header returns the LoROM cartridge header, if the image is large enough to
// hold one.
func (r *Rom) Header() (snes.Header, bool) { return r.header, r.hasHeader }

// IsLoROM reports whether the header map mode declares a LoROM layout.
func (r *Rom) IsLoROM() bool {
	return r.hasHeader && r.header.MapMode&^uint8(0x10) == 0x20
}

// Region returns a short name for the header destination code.
func (r *Rom) Region() string {
	if !r.hasHeader {
		return "unknown"
	}
	switch r.header.DestinationCode {
	case snes.RegionJapan:
		return "JP"
	case snes.RegionNorthAmerica:
		return "US"
	}
	return fmt.Sprintf("0x%02X", uint8(r.header.DestinationCode))
}

// Expand grows the image to size bytes, zero-filling the new tail. Shrinking
// is not supported and resizing is refused while a fence is active.
func (r *Rom) Expand(size int) error {
	if len(r.fences) != 0 {
		return fmt.Errorf("%w: cannot resize while %d write fence(s) are active", ErrPermissionDenied, len(r.fences))
	}
	if size < len(r.data) {
		return fmt.Errorf("%w: cannot shrink rom from 0x%X to 0x%X bytes", ErrInvalidArgument, len(r.data), size)
	}
	if size == len(r.data) {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, r.data)
	r.data = grown
	log.ModRom.InfoZ("rom expanded").Int("size", size).End()
	return nil
}
