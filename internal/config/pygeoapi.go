package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// pygeoapiConfig is the subset of the pygeoapi configuration file we read.
type pygeoapiConfig struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
}

// ReadPygeoapiServerURL returns server.url from a pygeoapi YAML config. This
// is the base URL the upstream embeds in the links it generates.
func ReadPygeoapiServerURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var pc pygeoapiConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if pc.Server.URL == "" {
		return "", fmt.Errorf("%s has no server.url", path)
	}
	return pc.Server.URL, nil
}
