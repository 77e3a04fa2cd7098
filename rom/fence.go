package rom

import (
	"fmt"
	"sort"

	"zroom/log"
)

// WriteRange is a labeled half-open byte interval [Start, End).
type WriteRange struct {
	Start int
	End   int
	Label string
}

func (w WriteRange) Len() int { return w.End - w.Start }

// Contains reports whether [start, start+size) lies entirely inside w.
func (w WriteRange) Contains(start, size int) bool {
	return start >= w.Start && start+size <= w.End
}

func (w WriteRange) Overlaps(o WriteRange) bool {
	return w.Start < o.End && o.Start < w.End
}

func (w WriteRange) String() string {
	if w.Label == "" {
		return fmt.Sprintf("[0x%06X,0x%06X)", w.Start, w.End)
	}
	return fmt.Sprintf("%s [0x%06X,0x%06X)", w.Label, w.Start, w.End)
}

// A WriteFence is an allow-list of byte ranges. While a fence is active on a
// Rom (see Rom.WithFence) every write must fall entirely inside one of its
// allowed ranges. Fences nest: a write must satisfy all active fences.
type WriteFence struct {
	label   string
	allowed []WriteRange
	written []WriteRange
}

func NewWriteFence(label string) *WriteFence {
	return &WriteFence{label: label}
}

func (f *WriteFence) Label() string { return f.label }

// Allow registers [start, end) as writable. Ranges of a single fence must be
// disjoint.
func (f *WriteFence) Allow(start, end int, label string) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: fence %q: empty or negative range %s", ErrInvalidArgument, f.label,
			WriteRange{start, end, label})
	}

	rng := WriteRange{Start: start, End: end, Label: label}
	for _, a := range f.allowed {
		if a.Overlaps(rng) {
			return fmt.Errorf("%w: fence %q: range %s overlaps %s", ErrAlreadyExists, f.label, rng, a)
		}
	}

	f.allowed = append(f.allowed, rng)
	sort.Slice(f.allowed, func(i, j int) bool { return f.allowed[i].Start < f.allowed[j].Start })
	return nil
}

// Allowed returns the allowed ranges, sorted by start address.
func (f *WriteFence) Allowed() []WriteRange {
	return append([]WriteRange(nil), f.allowed...)
}

// Written returns the sorted, coalesced list of ranges written while the
// fence was active. It is never consulted for permission decisions.
func (f *WriteFence) Written() []WriteRange {
	return append([]WriteRange(nil), f.written...)
}

func (f *WriteFence) permits(start, size int) bool {
	for _, a := range f.allowed {
		if a.Contains(start, size) {
			return true
		}
	}
	return false
}

func (f *WriteFence) record(start, size int) {
	rng := WriteRange{Start: start, End: start + size}

	merged := make([]WriteRange, 0, len(f.written)+1)
	inserted := false
	for _, w := range f.written {
		switch {
		case w.End < rng.Start:
			merged = append(merged, w)
		case rng.End < w.Start:
			if !inserted {
				merged = append(merged, rng)
				inserted = true
			}
			merged = append(merged, w)
		default:
			// overlapping or adjacent
			rng.Start = min(rng.Start, w.Start)
			rng.End = max(rng.End, w.End)
		}
	}
	if !inserted {
		merged = append(merged, rng)
	}
	f.written = merged
}

// WithFence activates f for the duration of fn. The fence is removed on every
// exit path, including panics.
func (r *Rom) WithFence(f *WriteFence, fn func() error) error {
	r.fences = append(r.fences, f)
	depth := len(r.fences)
	defer func() {
		r.fences = r.fences[:depth-1]
	}()

	log.ModFence.DebugZ("fence enter").
		String("fence", f.label).
		Int("depth", depth).
		Int("ranges", len(f.allowed)).
		End()
	err := fn()
	log.ModFence.DebugZ("fence exit").
		String("fence", f.label).
		Int("depth", depth).
		Int("written", len(f.written)).
		End()
	return err
}

// FenceDepth returns the number of currently active fences.
func (r *Rom) FenceDepth() int { return len(r.fences) }

// CheckWrite reports whether a write of size bytes at start would currently
// be permitted, without writing anything.
func (r *Rom) CheckWrite(start, size int, op string) error {
	return r.check(start, size, op)
}

func (r *Rom) check(start, size int, op string) error {
	for i, f := range r.fences {
		if f.permits(start, size) {
			continue
		}
		log.ModFence.WarnZ("write blocked by fence").
			String("op", op).
			String("fence", f.label).
			Hex24("start", uint32(start)).
			Int("size", size).
			End()
		return fmt.Errorf("%w: %s %s blocked by fence %q (depth %d)",
			ErrPermissionDenied, op, WriteRange{Start: start, End: start + size}, f.label, i+1)
	}
	return nil
}

func (r *Rom) record(start, size int) {
	for _, f := range r.fences {
		f.record(start, size)
	}
}
