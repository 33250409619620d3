package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

// providersFile is the on-disk format of the providers list.
type providersFile struct {
	Providers []*mcpsup.ProviderConfig `yaml:"providers"`
}

// loadProviders reads and validates the providers file at path.
func loadProviders(path string) ([]*mcpsup.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", path, err)
	}

	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("providers file %s lists no providers", path)
	}

	seen := make(map[string]struct{}, len(file.Providers))

	for _, p := range file.Providers {
		if p == nil {
			return nil, &mcpsup.ConfigError{Field: "provider", Reason: "must not be empty"}
		}

		if err := p.Validate(); err != nil {
			return nil, err
		}

		if _, dup := seen[p.Name]; dup {
			return nil, &mcpsup.ConfigError{Provider: p.Name, Field: "name", Reason: "is listed twice"}
		}

		seen[p.Name] = struct{}{}
	}

	return file.Providers, nil
}
