package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"zroom/log"
)

type (
	CLI struct {
		Info      Info      `cmd:"" help:"Show ROM infos and dungeon table usage."`
		Check     Check     `cmd:"" help:"Validate the dungeon tables of one or more ROMs."`
		Collision Collision `cmd:"" help:"Export or import custom collision maps."`
		WaterFill WaterFill `cmd:"" name:"waterfill" help:"Export or import the water fill zone table."`
		Sprites   Sprites   `cmd:"" help:"Inspect and relocate room sprite streams."`

		Log    logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`
		Config string     `help:"${config_help}" type:"path" placeholder:"FILE"`

		command string
	}

	Info struct {
		RomPath string `arg:"" name:"/path/to/rom" type:"existingfile"`
	}

	Check struct {
		RomPaths []string `arg:"" name:"/path/to/rom" type:"existingfile"`
	}

	// Flags shared by commands modifying the ROM.
	Patch struct {
		DryRun bool   `name:"dry-run" help:"Validate and report, leave the ROM untouched."`
		Output string `name:"output" short:"o" help:"${output_help}" type:"path" placeholder:"FILE"`
	}

	Collision struct {
		Export CollisionExport `cmd:"" help:"Write custom collision of all rooms as JSON."`
		Import CollisionImport `cmd:"" help:"Apply custom collision from a JSON file."`
	}

	CollisionExport struct {
		RomPath string   `arg:"" name:"/path/to/rom" type:"existingfile"`
		Rooms   []string `name:"room" help:"Rooms to export, all by default." sep:","`
		Out     *outfile `name:"out" help:"Write JSON to file." placeholder:"FILE|stdout|stderr"`
	}

	CollisionImport struct {
		RomPath    string `arg:"" name:"/path/to/rom" type:"existingfile"`
		In         string `name:"in" help:"JSON file to import." type:"existingfile" required:""`
		ReplaceAll bool   `name:"replace-all" help:"Clear custom collision of every room absent from the file."`
		Force      bool   `name:"force" help:"Confirm --replace-all."`
		Patch `embed:""`
	}

	WaterFill struct {
		Export       WaterFillExport `cmd:"" help:"Write the water fill zones as JSON."`
		Import       WaterFillImport `cmd:"" help:"Replace the water fill table from a JSON file."`
		ImportLegacy WaterFillLegacy `cmd:"" name:"import-legacy" help:"Migrate the legacy water gate tables."`
	}

	WaterFillExport struct {
		RomPath string   `arg:"" name:"/path/to/rom" type:"existingfile"`
		Out     *outfile `name:"out" help:"Write JSON to file." placeholder:"FILE|stdout|stderr"`
	}

	WaterFillImport struct {
		RomPath     string `arg:"" name:"/path/to/rom" type:"existingfile"`
		In          string `name:"in" help:"JSON file to import." type:"existingfile" required:""`
		StrictMasks bool   `name:"strict-masks" help:"Fail instead of allocating SRAM bits."`
		Patch `embed:""`
	}

	WaterFillLegacy struct {
		RomPath string `arg:"" name:"/path/to/rom" type:"existingfile"`
		Sym     string `name:"sym" help:"${sym_help}" type:"path" placeholder:"FILE"`
		Patch `embed:""`
	}

	Sprites struct {
		Free     SpritesFree     `cmd:"" help:"Show free space in the sprite bank."`
		Show     SpritesShow     `cmd:"" help:"Dump the sprite stream of a room."`
		Relocate SpritesRelocate `cmd:"" help:"Rewrite a room sprite stream at the end of the used space."`
	}

	SpritesFree struct {
		RomPath string `arg:"" name:"/path/to/rom" type:"existingfile"`
	}

	SpritesShow struct {
		RomPath string `arg:"" name:"/path/to/rom" type:"existingfile"`
		Room    string `name:"room" help:"Room id." required:""`
	}

	SpritesRelocate struct {
		RomPath string `arg:"" name:"/path/to/rom" type:"existingfile"`
		Room    string `name:"room" help:"Room id." required:""`
		Payload string `name:"payload" help:"${payload_help}" required:""`
		Patch `embed:""`
	}
)

var vars = kong.Vars{
	"log_help":     "Enable debug logging for specified modules.",
	"config_help":  "Configuration file. (default: user config dir/zroom/config.toml)",
	"output_help":  "Write the patched ROM to FILE instead of overwriting it.",
	"sym_help":     "WLA symbol file. (default: ROM path with .sym extension)",
	"payload_help": "Sprite entries in hex, terminator included (e.g. '0a1b2c ff').",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("zroom"),
		kong.Description("Dungeon room data tool for LoROM Zelda 3 ROMs."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	cfg.command = commandName(ctx.Command())
	return cfg
}

// commandName strips positional arguments from a kong command string:
// "collision export </path/to/rom>" becomes "collision export".
func commandName(cmd string) string {
	var words []string
	for _, w := range strings.Fields(cmd) {
		if strings.HasPrefix(w, "<") {
			break
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if ctx.Command() == "" {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}

		fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"))
	}

	return nil
}

type logModMask log.ModuleMask

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm logModMask) Decode(ctx *kong.DecodeContext) error {
	nolog := false
	allLogs := false

	tok := ctx.Scan.Pop()
	for _, v := range strings.Split(tok.Value.(string), ",") {
		switch v {
		case "all":
			allLogs = true
		case "no":
			nolog = true
		default:
			mod, ok := log.ModuleByName(v)
			if !ok {
				return fmt.Errorf("unknown log module %s", v)
			}
			lm |= logModMask(mod.Mask())
		}
	}

	if nolog {
		if allLogs {
			return fmt.Errorf("cannot use 'all' and 'no' together")
		}
		if lm != 0 {
			return fmt.Errorf("cannot combine 'no' with other log modules")
		}
		log.Disable()
		return nil
	}

	if allLogs {
		lm = logModMask(log.ModuleMaskAll)
	}

	log.EnableDebugModules(log.ModuleMask(lm))
	return nil
}

type outfile struct {
	w     io.Writer
	name  string
	close func() error
}

// Decode decodes FILE|stdout|stderr into an io.WriteCloser
// that writes to that file.
//
// Implements kong.MapperValue interface.
func (f *outfile) Decode(ctx *kong.DecodeContext) error {
	tok := ctx.Scan.Pop()
	f.name = tok.Value.(string)
	f.close = func() error { return nil }

	switch f.name {
	case "stdout":
		f.w = os.Stdout
	case "stderr":
		f.w = os.Stderr
	default:
		fd, err := os.Create(f.name)
		if err != nil {
			return err
		}
		f.w = fd
		f.close = fd.Close
	}
	return nil
}

// orStdout returns f, or stdout if the flag was not given.
func orStdout(f *outfile) io.WriteCloser {
	if f == nil || f.w == nil {
		return &outfile{w: os.Stdout, name: "stdout", close: func() error { return nil }}
	}
	return f
}

func (f *outfile) String() string              { return f.name }
func (f *outfile) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f *outfile) Close() error                { return f.close() }

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
