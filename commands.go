package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"zroom/config"
	"zroom/dungeon"
	"zroom/log"
	"zroom/rom"
)

func openRom(path string) (*rom.Rom, error) {
	r, err := rom.Open(path)
	if err != nil {
		return nil, err
	}
	if _, ok := r.Header(); ok && !r.IsLoROM() {
		log.ModCLI.WarnZ("header does not declare a LoROM cartridge").String("rom", path).End()
	}
	return r, nil
}

// save writes r to p.Output, or back to where it was read from.
func (p Patch) save(w io.Writer, r *rom.Rom) error {
	if p.DryRun {
		fmt.Fprintln(w, "dry run, rom left untouched")
		return nil
	}
	path := p.Output
	if path == "" {
		path = r.Filename()
	}
	if err := r.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", path)
	return nil
}

func parseRoom(s string) (dungeon.RoomID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: room %q", rom.ErrInvalidArgument, s)
	}
	room := dungeon.RoomID(v)
	if !room.Valid() {
		return 0, fmt.Errorf("%w: room %s outside [0, 0x%X)", rom.ErrInvalidArgument, s, dungeon.NumberOfRooms)
	}
	return room, nil
}

func runInfo(w io.Writer, cmd Info, cfg config.Config) error {
	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	l := cfg.Layout

	fmt.Fprintf(w, "ROM:               %s\n", r.Filename())
	fmt.Fprintf(w, "Size:              0x%X bytes\n", r.Len())
	if r.HadCopierHeader() {
		fmt.Fprintf(w, "Copier header:     stripped\n")
	}
	if h, ok := r.Header(); ok {
		fmt.Fprintf(w, "Map mode:          0x%02X (LoROM: %t)\n", h.MapMode, r.IsLoROM())
		fmt.Fprintf(w, "Region:            %s\n", r.Region())
	}

	regions, err := l.Regions()
	if err != nil {
		return err
	}
	for _, e := range regions.Extents() {
		fmt.Fprintf(w, "%-18s 0x%06X-0x%06X\n", e.Label+":", e.Start, e.End)
	}

	if !l.HasCollisionTable(r.Len()) {
		fmt.Fprintf(w, "Custom collision:  not present\n")
	} else {
		rooms, err := l.ExportCollisionRooms(r)
		if err != nil {
			return err
		}
		free, err := l.CollisionFreeBytes(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Custom collision:  %d room(s), %d bytes free\n", len(rooms), free)
	}

	if !l.HasWaterFillRegion(r.Len()) {
		fmt.Fprintf(w, "Water fill:        not present\n")
	} else {
		zones, err := l.LoadWaterFill(r)
		if err != nil {
			return err
		}
		var masks uint8
		for _, z := range zones {
			masks |= z.SRAMBitMask
		}
		fmt.Fprintf(w, "Water fill:        %d zone(s), sram bits 0x%02X\n", len(zones), masks)
	}

	st, err := l.SpriteTable(r)
	if err != nil {
		return err
	}
	free, err := st.FreeBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Sprites:           %d bytes free in bank $%02X\n", free, l.SpriteBank)
	return nil
}

// checkRom decodes every table of the rom at path.
func checkRom(path string, l dungeon.Layout) error {
	r, err := openRom(path)
	if err != nil {
		return err
	}

	var errs []error
	if l.HasCollisionTable(r.Len()) {
		for room := dungeon.RoomID(0); room < dungeon.NumberOfRooms; room++ {
			if _, err := l.LoadCollisionMap(r, room); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if _, err := l.LoadWaterFill(r); err != nil {
		errs = append(errs, err)
	}
	st, err := l.SpriteTable(r)
	if err != nil {
		errs = append(errs, err)
	} else {
		for room := dungeon.RoomID(0); room < dungeon.NumberOfRooms; room++ {
			if _, err := st.Stream(room); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func runCheck(w io.Writer, cmd Check, cfg config.Config) error {
	if err := cfg.Layout.Validate(); err != nil {
		return err
	}

	// one rom per goroutine, roms are never shared
	results := make([]error, len(cmd.RomPaths))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range cmd.RomPaths {
		g.Go(func() error {
			results[i] = checkRom(path, cfg.Layout)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, path := range cmd.RomPaths {
		if results[i] == nil {
			fmt.Fprintf(w, "%s: ok\n", path)
			continue
		}
		failed++
		fmt.Fprintf(w, "%s: FAIL\n", path)
		for _, line := range strings.Split(results[i].Error(), "\n") {
			fmt.Fprintf(w, "\t%s\n", line)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rom(s) failed", failed, len(cmd.RomPaths))
	}
	return nil
}

func runCollisionExport(cmd CollisionExport, cfg config.Config) error {
	var rooms []dungeon.RoomID
	for _, s := range cmd.Rooms {
		room, err := parseRoom(s)
		if err != nil {
			return err
		}
		rooms = append(rooms, room)
	}

	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	exported, err := cfg.Layout.ExportCollisionRooms(r, rooms...)
	if err != nil {
		return err
	}
	buf, err := dungeon.DumpCollisionJSON(exported)
	if err != nil {
		return err
	}

	out := orStdout(cmd.Out)
	defer out.Close()
	_, err = fmt.Fprintf(out, "%s\n", buf)
	return err
}

func runCollisionImport(w io.Writer, cmd CollisionImport, cfg config.Config) error {
	if cmd.ReplaceAll && !cmd.Force {
		return errors.New("--replace-all clears every room missing from the file, confirm with --force")
	}

	buf, err := os.ReadFile(cmd.In)
	if err != nil {
		return err
	}
	rooms, err := dungeon.ParseCollisionJSON(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.In, err)
	}

	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	sum, err := cfg.Layout.SaveCollisionRooms(r, rooms, cmd.ReplaceAll)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "collision: %d room(s) written, %d cleared\n", sum.Populated, sum.Cleared)
	return cmd.save(w, r)
}

func runWaterFillExport(cmd WaterFillExport, cfg config.Config) error {
	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	zones, err := cfg.Layout.LoadWaterFill(r)
	if err != nil {
		return err
	}
	buf, err := dungeon.DumpWaterFillJSON(zones)
	if err != nil {
		return err
	}

	out := orStdout(cmd.Out)
	defer out.Close()
	_, err = fmt.Fprintf(out, "%s\n", buf)
	return err
}

func runWaterFillImport(w io.Writer, cmd WaterFillImport, cfg config.Config) error {
	buf, err := os.ReadFile(cmd.In)
	if err != nil {
		return err
	}
	zones, err := dungeon.ParseWaterFillJSON(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.In, err)
	}

	norm, err := dungeon.NormalizeWaterFill(zones)
	if err != nil {
		return err
	}
	if n := dungeon.MaskChanges(zones, norm); n > 0 {
		if cmd.StrictMasks {
			return fmt.Errorf("%w: %d zone(s) need an sram bit allocated", rom.ErrFailedPrecondition, n)
		}
		log.ModCLI.InfoZ("allocated sram bits").Int("zones", n).End()
	}

	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	written, err := cfg.Layout.WriteWaterFill(r, norm)
	if err != nil {
		return err
	}
	printZones(w, written)
	return cmd.save(w, r)
}

func runWaterFillLegacy(w io.Writer, cmd WaterFillLegacy, cfg config.Config) error {
	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}

	sym := cmd.Sym
	if sym == "" {
		sym = cfg.Legacy.SymbolFile
	}
	legacy, err := cfg.Layout.LoadLegacyWaterGates(r, sym)
	if err != nil {
		return err
	}
	if len(legacy) == 0 {
		fmt.Fprintln(w, "no legacy water gate tables found")
		return nil
	}

	// legacy zones win over existing ones for the same room
	current, err := cfg.Layout.LoadWaterFill(r)
	if err != nil {
		return err
	}
	written, err := cfg.Layout.WriteWaterFill(r, append(current, legacy...))
	if err != nil {
		return err
	}
	printZones(w, written)
	return cmd.save(w, r)
}

func printZones(w io.Writer, zones []dungeon.WaterFillZone) {
	for _, z := range zones {
		fmt.Fprintf(w, "water fill: room %v mask 0x%02X, %d tile(s)\n", z.Room, z.SRAMBitMask, len(z.FillOffsets))
	}
}

func runSpritesFree(w io.Writer, cmd SpritesFree, cfg config.Config) error {
	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	st, err := cfg.Layout.SpriteTable(r)
	if err != nil {
		return err
	}
	end, err := st.FindMaxUsedEnd()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sprite data: 0x%06X-0x%06X, used up to 0x%06X, %d bytes free\n",
		st.DataStart(), st.BankEnd(), end, st.BankEnd()-end)
	return nil
}

func runSpritesShow(w io.Writer, cmd SpritesShow, cfg config.Config) error {
	room, err := parseRoom(cmd.Room)
	if err != nil {
		return err
	}
	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	st, err := cfg.Layout.SpriteTable(r)
	if err != nil {
		return err
	}
	pc, ok, err := st.Pointer(room)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "room %v: no sprite stream\n", room)
		return nil
	}
	s, err := st.Stream(room)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "room %v: 0x%06X, sort mode %d, %d entries\n", room, pc, s.SortMode, len(s.Entries))
	for _, e := range s.Entries {
		fmt.Fprintf(w, "\t%s\n", hex.EncodeToString(e[:]))
	}
	return nil
}

func runSpritesRelocate(w io.Writer, cmd SpritesRelocate, cfg config.Config) error {
	room, err := parseRoom(cmd.Room)
	if err != nil {
		return err
	}
	payload, err := hex.DecodeString(strings.Join(strings.Fields(cmd.Payload), ""))
	if err != nil {
		return fmt.Errorf("%w: payload: %v", rom.ErrInvalidArgument, err)
	}

	r, err := openRom(cmd.RomPath)
	if err != nil {
		return err
	}
	st, err := cfg.Layout.SpriteTable(r)
	if err != nil {
		return err
	}
	dest, err := st.Relocate(room, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "room %v sprites moved to 0x%06X\n", room, dest)
	return cmd.save(w, r)
}
