// Package config handles scenekit configuration loading and management.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tool and loader settings.
type Config struct {
	Assets  AssetsConfig  `yaml:"assets" toml:"assets"`
	Loader  LoaderConfig  `yaml:"loader" toml:"loader"`
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// AssetsConfig locates section and texture files.
type AssetsConfig struct {
	BasePath    string   `yaml:"base_path" toml:"base_path"`
	Overlays    []string `yaml:"overlays" toml:"overlays"` // extra roots searched before BasePath
	Compression bool     `yaml:"compression" toml:"compression"`
}

// LoaderConfig tunes document loading.
type LoaderConfig struct {
	TextureConcurrency int      `yaml:"texture_concurrency" toml:"texture_concurrency"`
	FetchTimeout       Duration `yaml:"fetch_timeout" toml:"fetch_timeout"`
	Validate           bool     `yaml:"validate" toml:"validate"`
}

// ExportConfig controls how sections are written.
type ExportConfig struct {
	Gzip   bool `yaml:"gzip" toml:"gzip"`
	Indent bool `yaml:"indent" toml:"indent"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	JSON    bool   `yaml:"json" toml:"json"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Duration is a time.Duration written as "30s" in config files.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Assets: AssetsConfig{
			BasePath:    "./assets/",
			Compression: true,
		},
		Loader: LoaderConfig{
			TextureConcurrency: 8,
			FetchTimeout:       Duration{30 * time.Second},
			Validate:           true,
		},
		Export: ExportConfig{
			Gzip:   true,
			Indent: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
