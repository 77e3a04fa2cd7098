package rom

import (
	"fmt"
	"sort"
)

// RegionMap records which table owns which extent of the image. Extents never
// overlap: this is where tables sharing a bank prove they do not step on each
// other.
type RegionMap struct {
	extents []WriteRange
}

// Claim registers [start, end) under label.
func (m *RegionMap) Claim(start, end int, label string) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: region %q has empty or negative extent [0x%06X,0x%06X)", ErrInvalidArgument, label, start, end)
	}

	ext := WriteRange{Start: start, End: end, Label: label}
	for _, e := range m.extents {
		if e.Label == label {
			return fmt.Errorf("%w: region %q claimed twice", ErrAlreadyExists, label)
		}
		if e.Overlaps(ext) {
			return fmt.Errorf("%w: region %s overlaps %s", ErrFailedPrecondition, ext, e)
		}
	}

	m.extents = append(m.extents, ext)
	sort.Slice(m.extents, func(i, j int) bool { return m.extents[i].Start < m.extents[j].Start })
	return nil
}

// Owner returns the extent containing addr.
func (m *RegionMap) Owner(addr int) (WriteRange, bool) {
	i := sort.Search(len(m.extents), func(i int) bool { return m.extents[i].End > addr })
	if i < len(m.extents) && m.extents[i].Start <= addr {
		return m.extents[i], true
	}
	return WriteRange{}, false
}

// Extents returns all claimed extents sorted by start address.
func (m *RegionMap) Extents() []WriteRange {
	return append([]WriteRange(nil), m.extents...)
}
