// Package symbols reads WLA-DX style symbol files, as emitted by asar and
// friends alongside a patched rom. Each label line has the form
//
//	BB:AAAA Label
//
// where BB:AAAA is the bus address of the label. Section headers ("[labels]")
// and comments are ignored.
package symbols

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var labelLine = regexp.MustCompile(`^\s*([0-9A-Fa-f]{2}):([0-9A-Fa-f]{4})\s+(.+?)\s*$`)

// Table maps label names to 24-bit bus addresses.
type Table struct {
	Entries map[string]uint32
}

func newTable() *Table {
	return &Table{Entries: make(map[string]uint32)}
}

// ReadFile reads a symbol file from disk.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Read parses symbol lines from r. When a label appears twice the last
// definition wins.
func Read(r io.Reader) (*Table, error) {
	t := newTable()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		m := labelLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		bank, _ := strconv.ParseUint(m[1], 16, 8)
		addr, _ := strconv.ParseUint(m[2], 16, 16)
		t.Entries[m[3]] = uint32(bank)<<16 | uint32(addr)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the address of label.
func (t *Table) Lookup(label string) (uint32, bool) {
	if t == nil {
		return 0, false
	}
	addr, ok := t.Entries[label]
	return addr, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}

func (t *Table) String() string {
	names := make([]string, 0, len(t.Entries))
	for k := range t.Entries {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		return t.Entries[names[i]] < t.Entries[names[j]]
	})

	s := strings.Builder{}
	for _, n := range names {
		a := t.Entries[n]
		fmt.Fprintf(&s, "%02X:%04X %s\n", a>>16, a&0xFFFF, n)
	}
	return s.String()
}

// GuessPath derives the conventional symbol file path from a rom path:
// game.sfc -> game.sym. It returns false if there is no such file.
func GuessPath(romPath string) (string, bool) {
	if romPath == "" {
		return "", false
	}
	dot := strings.LastIndexByte(romPath, '.')
	if dot < 0 || strings.ContainsRune(romPath[dot:], os.PathSeparator) {
		return "", false
	}
	sym := romPath[:dot] + ".sym"
	if fi, err := os.Stat(sym); err != nil || fi.IsDir() {
		return "", false
	}
	return sym, true
}
