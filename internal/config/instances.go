package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"permsync/internal/domain"
)

// instanceEntry is one instance in the YAML inventory file.
type instanceEntry struct {
	Name             string   `yaml:"name"`
	Engine           string   `yaml:"engine"`
	DSN              string   `yaml:"dsn"`
	ExcludedUsers    []string `yaml:"excluded_users"`
	ExcludedPatterns []string `yaml:"excluded_patterns"`
	Disabled         bool     `yaml:"disabled"`
}

type instancesFile struct {
	Instances []instanceEntry `yaml:"instances"`
}

// LoadInstances reads the YAML instance inventory used to seed the
// registry at startup.
func LoadInstances(path string) ([]*domain.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instances file: %w", err)
	}

	var file instancesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse instances file: %w", err)
	}

	out := make([]*domain.Instance, 0, len(file.Instances))
	for i, entry := range file.Instances {
		if entry.Name == "" {
			return nil, fmt.Errorf("instances[%d]: name is required", i)
		}
		if entry.DSN == "" {
			return nil, fmt.Errorf("instances[%d] (%s): dsn is required", i, entry.Name)
		}
		engine, err := domain.ParseEngine(entry.Engine)
		if err != nil {
			return nil, fmt.Errorf("instances[%d] (%s): %w", i, entry.Name, err)
		}
		out = append(out, &domain.Instance{
			Name:             entry.Name,
			Engine:           engine,
			DSN:              entry.DSN,
			ExcludedUsers:    entry.ExcludedUsers,
			ExcludedPatterns: entry.ExcludedPatterns,
			Active:           !entry.Disabled,
		})
	}
	return out, nil
}
