package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Marshal renders cfg in the on-disk format accepted by Load.
func Marshal(cfg Config) ([]byte, error) {
	data, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// WriteTemplate writes the default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
