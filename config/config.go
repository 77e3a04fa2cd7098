// Package config holds the zroom settings: layout overrides for hacks that
// moved the tables, default debug log modules and the legacy symbol file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"zroom/dungeon"
	"zroom/log"
)

type Config struct {
	Layout dungeon.Layout `toml:"layout"`
	Log    LogConfig      `toml:"log"`
	Legacy LegacyConfig   `toml:"legacy"`
}

type LogConfig struct {
	// Modules enabled for debug output, same values as --log.
	Modules []string `toml:"modules"`
}

type LegacyConfig struct {
	SymbolFile string `toml:"symbol_file"`
}

const DefaultFileMode = os.FileMode(0755)

const cfgFilename = "config.toml"

// Default returns the built-in configuration.
func Default() Config {
	return Config{Layout: dungeon.DefaultLayout}
}

// DefaultPath returns the path of the configuration file in the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "zroom", cfgFilename), nil
}

// Load reads the configuration file at path. Keys absent from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	for _, key := range md.Undecoded() {
		log.ModConfig.WarnZ("unknown configuration key").
			String("file", path).
			String("key", key.String()).
			End()
	}
	if err := cfg.Layout.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := cfg.DebugModules(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigOrDefault loads the configuration at path, or at DefaultPath if
// path is empty. A missing file gives the default configuration.
func LoadConfigOrDefault(path string) (Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			log.ModConfig.Warnf("%v, using default configuration", err)
			return Default(), nil
		}
	}

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.ModConfig.DebugZ("no configuration file").String("path", path).End()
		return Default(), nil
	}
	return cfg, err
}

// Save writes cfg to path, creating its directory if needed.
func Save(path string, cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultFileMode); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

// DebugModules converts the configured module names into a mask.
func (c *Config) DebugModules() (log.ModuleMask, error) {
	var mask log.ModuleMask
	for _, name := range c.Log.Modules {
		name = strings.TrimSpace(name)
		if name == "all" {
			mask |= log.ModuleMaskAll
			continue
		}
		mod, ok := log.ModuleByName(name)
		if !ok {
			return 0, fmt.Errorf("unknown log module %q", name)
		}
		mask |= mod.Mask()
	}
	return mask, nil
}
