package mcp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerDef describes one tool server in servers.yaml.
type ServerDef struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ServersFile is the parsed shape of a servers.yaml file.
type ServersFile struct {
	Servers []ServerDef `yaml:"servers"`
}

// DefaultServers returns the built-in weather and thermostat pair used when
// no servers.yaml is present.
func DefaultServers(weatherURL, thermostatURL string) []ServerDef {
	return []ServerDef{
		{Name: "weather-mcp", URL: weatherURL},
		{Name: "homeassistant-mcp", URL: thermostatURL},
	}
}

// LoadServers reads and validates a servers.yaml file.
func LoadServers(path string) ([]ServerDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	var file ServersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}

	if len(file.Servers) == 0 {
		return nil, fmt.Errorf("%s defines no servers", path)
	}

	seen := make(map[string]bool, len(file.Servers))
	for i, s := range file.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("%s: server %d has no name", path, i)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("%s: server %q has no url", path, s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%s: duplicate server name %q", path, s.Name)
		}
		seen[s.Name] = true
	}

	return file.Servers, nil
}

// LoadServersOrDefault loads servers.yaml when it exists and falls back to
// the built-in pair when it does not. A present but invalid file is an
// error rather than a silent fallback.
func LoadServersOrDefault(path, weatherURL, thermostatURL string) ([]ServerDef, error) {
	if path == "" {
		return DefaultServers(weatherURL, thermostatURL), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultServers(weatherURL, thermostatURL), nil
	}
	return LoadServers(path)
}
