// Package config loads the secretd emulator configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   string         `yaml:"listen"`
	Backend  string         `yaml:"backend"` // mem | file | ftdi
	Image    string         `yaml:"image"`   // flash image path for the file backend
	Geometry GeometryConfig `yaml:"geometry"`
	Log      LogConfig      `yaml:"log"`
}

// GeometryConfig mirrors the build-time flash constants. Zero values take
// the RP2040 defaults. For the ftdi backend total_flash_size is taken from
// the detected chip.
type GeometryConfig struct {
	TotalFlashSize uint32  `yaml:"total_flash_size"`
	BackingSize    *uint32 `yaml:"backing_size"` // nil means default; 0 is valid
	StorageSize    uint32  `yaml:"storage_size"`
	SectorSize     uint32  `yaml:"sector_size"`
	PageSize       uint32  `yaml:"page_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

const (
	BackendMem  = "mem"
	BackendFile = "file"
	BackendFTDI = "ftdi"
)

// Load reads path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown keys.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}
