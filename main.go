package main

import (
	"os"

	"zroom/config"
	"zroom/log"
)

func main() {
	cli := parseArgs(os.Args[1:])

	cfg, err := config.LoadConfigOrDefault(cli.Config)
	checkf(err, "failed to load configuration")
	mask, err := cfg.DebugModules()
	checkf(err, "invalid configuration")
	log.EnableDebugModules(mask)

	out := os.Stdout
	switch cli.command {
	case "info":
		err = runInfo(out, cli.Info, cfg)
	case "check":
		err = runCheck(out, cli.Check, cfg)
	case "collision export":
		err = runCollisionExport(cli.Collision.Export, cfg)
	case "collision import":
		err = runCollisionImport(out, cli.Collision.Import, cfg)
	case "waterfill export":
		err = runWaterFillExport(cli.WaterFill.Export, cfg)
	case "waterfill import":
		err = runWaterFillImport(out, cli.WaterFill.Import, cfg)
	case "waterfill import-legacy":
		err = runWaterFillLegacy(out, cli.WaterFill.ImportLegacy, cfg)
	case "sprites free":
		err = runSpritesFree(out, cli.Sprites.Free, cfg)
	case "sprites show":
		err = runSpritesShow(out, cli.Sprites.Show, cfg)
	case "sprites relocate":
		err = runSpritesRelocate(out, cli.Sprites.Relocate, cfg)
	default:
		fatalf("unexpected command %q", cli.command)
	}
	checkf(err, "%s failed", cli.command)
}
