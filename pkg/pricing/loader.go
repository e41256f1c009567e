package pricing

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML pricing file and returns the provider configuration.
func LoadFile(path string) (*ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file %s: %w", path, err)
	}

	cfg, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("pricing file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadBytes parses and validates YAML pricing data.
func LoadBytes(data []byte) (*ProviderConfig, error) {
	var cfg ProviderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pricing data: %w", err)
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("missing provider name")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}
	return &cfg, nil
}

// LoadDir builds a catalog from every *.yaml file in dir.
// A missing directory yields an empty catalog.
func LoadDir(dir string) (*Catalog, error) {
	catalog := NewCatalog()

	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list pricing files: %w", err)
	}
	for _, path := range paths {
		cfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := catalog.Register(cfg); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}
