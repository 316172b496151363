package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

type AppConfig struct {
	Store  *StoreConfig  `json:"store"`
	Logger *LoggerConfig `json:"logger"`
}

func New() *AppConfig {
	return &AppConfig{
		Store:  NewStoreConfig(),
		Logger: NewLoggerConfig(),
	}
}

// Load reads a JSON config file on top of the defaults. Missing fields keep
// their default values.
func Load(path string) (*AppConfig, error) {
	cfg := New()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return cfg, nil
}
