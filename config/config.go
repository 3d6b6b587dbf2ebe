// Package config holds the preview server and resolver settings. Values
// come from defaults, then an optional YAML file, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"mdtransclude/directive"
	"mdtransclude/logging"
)

// Transclusion mirrors the resolver options.
type Transclusion struct {
	Strict        bool `yaml:"strict"`
	MaxDepth      int  `yaml:"max_depth"`
	MaxSize       int  `yaml:"max_size"`
	Dedupe        bool `yaml:"dedupe"`
	StripMetadata bool `yaml:"strip_metadata"`
	// ConfineToRoot refuses targets outside the served directory.
	ConfineToRoot bool `yaml:"confine_to_root"`
}

// Config is the full runtime configuration.
type Config struct {
	Host             string         `yaml:"host"`
	Port             int            `yaml:"port"`
	RootDir          string         `yaml:"root_dir"`
	File             string         `yaml:"file"`
	EnableLiveReload bool           `yaml:"livereload"`
	Format           string         `yaml:"format"`
	Transclusion     Transclusion   `yaml:"transclusion"`
	Log              logging.Config `yaml:"log"`
}

// Default returns the configuration used when nothing is supplied.
func Default() Config {
	return Config{
		Host:             "localhost",
		Port:             0,
		RootDir:          ".",
		EnableLiveReload: true,
		Format:           string(directive.FormatHTML),
		Transclusion: Transclusion{
			MaxDepth:      32,
			MaxSize:       16 << 20,
			ConfineToRoot: true,
		},
		Log: logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is true.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	if _, err := directive.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.Transclusion.MaxDepth < 0 {
		return fmt.Errorf("transclusion.max_depth must not be negative")
	}
	if c.Transclusion.MaxSize < 0 {
		return fmt.Errorf("transclusion.max_size must not be negative")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// OutputFormat returns the parsed Format. Call Validate first.
func (c Config) OutputFormat() directive.Format {
	f, err := directive.ParseFormat(c.Format)
	if err != nil {
		return directive.FormatHTML
	}
	return f
}
