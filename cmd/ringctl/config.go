package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"nandring/blockdev"
	"nandring/ringlog"
)

// Config is ringctl's geometry/ring/logging configuration. The ring
// library itself takes geometry from its caller on every start; this
// file is how the operator supplies the same geometry on each
// invocation.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`

	// ImagePath is where the simulated device's content is persisted
	// between ringctl invocations.
	ImagePath string `yaml:"image_path"`

	Geometry blockdev.Geometry `yaml:"geometry"`

	// Ring is the ring's fixed placement within the device.
	Ring ringlog.Config `yaml:"ring"`
}

// DefaultConfig returns a small geometry suitable for the demo mode.
func DefaultConfig() *Config {
	return &Config{
		Logging:   defaultLoggingConfig(),
		ImagePath: "ringctl.image",
		Geometry: blockdev.Geometry{
			Blocks:        64,
			PagesPerBlock: 64,
			PageDataSize:  2048,
			PageSpareSize: 64,
		},
		Ring: ringlog.Config{
			StartBlk: 0,
			Len:      64,
		},
	}
}

// LoadConfig reads and parses a YAML config file, defaulting any field
// the file omits.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ringctl: read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("ringctl: parse config %s: %w", path, err)
	}
	return cfg, nil
}
