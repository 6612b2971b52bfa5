package service

import (
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the engine's tunable surface. It can come from a TOML file or
// from LSP initialization options; missing fields keep their defaults.
type Config struct {
	FileExtensions   []string `toml:"file_extensions"       json:"file_extensions"`
	DefaultExtension string   `toml:"default_extension"     json:"default_extension"`
	DatabasePath     string   `toml:"database_path"         json:"database_path"`
	ScanIntervalSecs int      `toml:"scan_interval_seconds" json:"scan_interval_seconds"`
}

var defaultConfig = Config{
	FileExtensions:   []string{"md", "markdown"},
	DefaultExtension: "md",
	ScanIntervalSecs: 60,
}

func DefaultConfig() Config {
	return defaultConfig
}

// Load overlays v, typically the LSP initialization options, onto the
// default configuration. Only fields present in v overwrite.
func Load(v any) (Config, error) {
	cfg := defaultConfig
	if v == nil {
		return cfg, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a TOML configuration file, overlaying the defaults.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return cfg, nil
}
