package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v4"
)

// ConfigStore persists one ScheduleConfig per file in a directory, named
// "<id>.yaml".
type ConfigStore struct {
	dir string
}

// NewConfigStore returns a ConfigStore rooted at dir, creating it if absent.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scheduler: creating config dir: %w", err)
	}
	return &ConfigStore{dir: dir}, nil
}

func (s *ConfigStore) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// Save validates and writes cfg to its file, overwriting any prior version.
func (s *ConfigStore) Save(cfg ScheduleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("scheduler: marshalling config %q: %w", cfg.ID, err)
	}
	return os.WriteFile(s.path(cfg.ID), data, 0o644)
}

// Load reads one ScheduleConfig by id. It does not re-validate it or
// apply defaults; Save validates before writing.
func (s *ConfigStore) Load(id string) (ScheduleConfig, error) {
	var cfg ScheduleConfig
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return cfg, fmt.Errorf("scheduler: reading config %q: %w", id, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("scheduler: unmarshalling config %q: %w", id, err)
	}
	return cfg, nil
}

// Delete removes the config file for id. Deleting an absent id is not an
// error.
func (s *ConfigStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scheduler: deleting config %q: %w", id, err)
	}
	return nil
}

// List returns every persisted ScheduleConfig, sorted by file name (and thus
// by id).
func (s *ConfigStore) List() ([]ScheduleConfig, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: listing config dir: %w", err)
	}

	var out []ScheduleConfig
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".yaml")
		cfg, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Exists reports whether a config with id is already persisted.
func (s *ConfigStore) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}
