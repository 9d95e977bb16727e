package config

import "github.com/spf13/pflag"

// Flags holds command-line overrides. Zero values mean "not set".
type Flags struct {
	Config      string
	Debug       bool
	BasePath    string
	Compression string // "on", "off" or empty
	Concurrency int
	LogFile     string
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.BasePath, "base-path", "", "Asset base path")
	fs.StringVar(&f.Compression, "compression", "", "Use compressed textures (on|off)")
	fs.IntVar(&f.Concurrency, "concurrency", 0, "Concurrent texture loads")
	fs.StringVar(&f.LogFile, "log-file", "", "Write logs to this file")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.BasePath != "" {
		cfg.Assets.BasePath = f.BasePath
	}
	switch f.Compression {
	case "on", "true":
		cfg.Assets.Compression = true
	case "off", "false":
		cfg.Assets.Compression = false
	}
	if f.Concurrency > 0 {
		cfg.Loader.TextureConcurrency = f.Concurrency
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
}
