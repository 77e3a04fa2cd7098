package rom

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestRom(size int) *Rom {
	return New("test.sfc", make([]byte, size))
}

func mustAllow(t *testing.T, f *WriteFence, start, end int, label string) {
	t.Helper()
	if err := f.Allow(start, end, label); err != nil {
		t.Fatalf("Allow(%d, %d, %q): %v", start, end, label, err)
	}
}

func TestFenceSingleRange(t *testing.T) {
	r := newTestRom(0x200)
	f := NewWriteFence("test")
	mustAllow(t, f, 100, 150, "a")

	tests := []struct {
		name  string
		start int
		size  int
		ok    bool
	}{
		{"inside", 120, 10, true},
		{"exact", 100, 50, true},
		{"straddles start", 90, 20, false},
		{"straddles end", 145, 15, false},
		{"before", 0, 10, false},
		{"after", 150, 1, false},
	}

	err := r.WithFence(f, func() error {
		for _, tt := range tests {
			err := r.WriteBytes(tt.start, make([]byte, tt.size))
			if tt.ok && err != nil {
				t.Errorf("%s: write [%d,%d) rejected: %v", tt.name, tt.start, tt.start+tt.size, err)
			}
			if !tt.ok && !errors.Is(err, ErrPermissionDenied) {
				t.Errorf("%s: write [%d,%d) err = %v, want ErrPermissionDenied", tt.name, tt.start, tt.start+tt.size, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.FenceDepth() != 0 {
		t.Errorf("fence still active after WithFence returned")
	}
}

func TestFenceRejectionLeavesBytes(t *testing.T) {
	r := newTestRom(0x200)
	for i := range r.data {
		r.data[i] = 0xAA
	}
	f := NewWriteFence("test")
	mustAllow(t, f, 100, 150, "a")

	err := r.WithFence(f, func() error {
		return r.WriteBytes(140, make([]byte, 20))
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	for i := 140; i < 160; i++ {
		if r.data[i] != 0xAA {
			t.Fatalf("byte 0x%X modified by a rejected write", i)
		}
	}
	if got := f.Written(); len(got) != 0 {
		t.Errorf("rejected write recorded: %v", got)
	}
}

func TestFenceNested(t *testing.T) {
	r := newTestRom(0x200)
	outer := NewWriteFence("outer")
	mustAllow(t, outer, 0, 200, "all")
	inner := NewWriteFence("inner")
	mustAllow(t, inner, 50, 60, "narrow")

	err := r.WithFence(outer, func() error {
		if err := r.Write8(10, 1); err != nil {
			t.Errorf("outer fence rejected write at 10: %v", err)
		}

		err := r.WithFence(inner, func() error {
			if err := r.Write8(55, 1); err != nil {
				t.Errorf("nested fences rejected write at 55: %v", err)
			}
			if err := r.Write8(10, 1); !errors.Is(err, ErrPermissionDenied) {
				t.Errorf("write at 10 under inner fence: err = %v, want ErrPermissionDenied", err)
			}
			if r.FenceDepth() != 2 {
				t.Errorf("FenceDepth() = %d, want 2", r.FenceDepth())
			}
			return nil
		})
		if err != nil {
			return err
		}

		if err := r.Write8(10, 2); err != nil {
			t.Errorf("outer permissions not restored after inner fence: %v", err)
		}
		if err := r.Write8(199, 2); err != nil {
			t.Errorf("outer permissions not restored after inner fence: %v", err)
		}
		if err := r.Write8(200, 2); !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("write at 200: err = %v, want ErrPermissionDenied", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFenceInnerCannotWiden(t *testing.T) {
	r := newTestRom(0x200)
	outer := NewWriteFence("outer")
	mustAllow(t, outer, 50, 60, "narrow")
	inner := NewWriteFence("inner")
	mustAllow(t, inner, 0, 200, "wide")

	err := r.WithFence(outer, func() error {
		return r.WithFence(inner, func() error {
			return r.Write8(100, 1)
		})
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestFenceOverlappingAllow(t *testing.T) {
	f := NewWriteFence("test")
	mustAllow(t, f, 100, 150, "a")
	mustAllow(t, f, 150, 160, "adjacent")

	if err := f.Allow(140, 155, "b"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("overlapping Allow: err = %v, want ErrAlreadyExists", err)
	}
	if err := f.Allow(10, 10, "empty"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty Allow: err = %v, want ErrInvalidArgument", err)
	}

	want := []WriteRange{{100, 150, "a"}, {150, 160, "adjacent"}}
	if diff := cmp.Diff(want, f.Allowed()); diff != "" {
		t.Errorf("allowed ranges differ (-want +got):\n%s", diff)
	}
}

func TestFenceRemovedOnErrorAndPanic(t *testing.T) {
	r := newTestRom(0x100)
	f := NewWriteFence("test")
	mustAllow(t, f, 0, 1, "a")

	sentinel := errors.New("stop")
	if err := r.WithFence(f, func() error { return sentinel }); err != sentinel {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if r.FenceDepth() != 0 {
		t.Fatalf("fence still active after error")
	}

	func() {
		defer func() { _ = recover() }()
		_ = r.WithFence(f, func() error { panic("abort") })
	}()
	if r.FenceDepth() != 0 {
		t.Fatalf("fence still active after panic")
	}

	// unrestricted again
	if err := r.Write8(0x80, 1); err != nil {
		t.Fatalf("write after fence removal: %v", err)
	}
}

func TestFenceRecordCoalesces(t *testing.T) {
	r := newTestRom(0x100)
	f := NewWriteFence("test")
	mustAllow(t, f, 0, 0x100, "all")

	err := r.WithFence(f, func() error {
		writes := [][2]int{{10, 2}, {30, 5}, {12, 3}, {0, 1}, {20, 10}, {40, 1}}
		for _, w := range writes {
			if err := r.WriteBytes(w[0], make([]byte, w[1])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []WriteRange{{0, 1, ""}, {10, 15, ""}, {20, 35, ""}, {40, 41, ""}}
	if diff := cmp.Diff(want, f.Written()); diff != "" {
		t.Errorf("written ranges differ (-want +got):\n%s", diff)
	}
}
