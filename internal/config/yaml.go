package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// parseYAML parses a YAML configuration document. Keys match the Lua
// option names:
//
//	update_interval: 500ms
//	history_size: 120
func parseYAML(content []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return applyOptions(raw)
}
