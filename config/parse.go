package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Load reads a configuration file. The extension selects the format:
// - .yml or .yaml -> YAML
// - .json -> JSON
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(path))
	}
}

// ParseYAML parses a YAML configuration document.
func ParseYAML(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ParseJSON parses a JSON configuration document.
func ParseJSON(data []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if len(c.Workflows) == 0 {
		return fmt.Errorf("config defines no workflows")
	}
	seen := make(map[string]bool)
	for _, wf := range c.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("workflow name is required")
		}
		if seen[wf.Name] {
			return fmt.Errorf("duplicate workflow name %q", wf.Name)
		}
		seen[wf.Name] = true
		if len(wf.Steps) == 0 {
			return fmt.Errorf("workflow %q has no steps", wf.Name)
		}
		stepIDs := make(map[string]bool)
		for _, step := range wf.Steps {
			if step.AfterEvent != "" {
				if step.ID != "" {
					return fmt.Errorf("workflow %q: an AfterEvent entry must not also set ID", wf.Name)
				}
				if _, ok := wf.Events[step.AfterEvent]; !ok {
					return fmt.Errorf("workflow %q waits on undeclared event %q", wf.Name, step.AfterEvent)
				}
				continue
			}
			if step.ID == "" {
				return fmt.Errorf("workflow %q has a step without an id", wf.Name)
			}
			if stepIDs[step.ID] {
				return fmt.Errorf("workflow %q has duplicate step id %q", wf.Name, step.ID)
			}
			stepIDs[step.ID] = true
			for _, dep := range step.After {
				if !stepIDs[dep] {
					return fmt.Errorf("workflow %q: step %q joins on %q, which is not defined earlier", wf.Name, step.ID, dep)
				}
			}
			if step.Loop != nil {
				if step.Loop.Type != "while" && step.Loop.Type != "until" {
					return fmt.Errorf("workflow %q: step %q has invalid loop type %q", wf.Name, step.ID, step.Loop.Type)
				}
				if step.Loop.Condition == nil {
					return fmt.Errorf("workflow %q: step %q loop requires a condition", wf.Name, step.ID)
				}
			}
		}
	}
	return nil
}
