package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the on-disk agent configuration. Command line flags and
// environment variables take precedence over it.
type Config struct {
	URL            string        `yaml:"url"`
	BasePath       string        `yaml:"basePath"`
	Secret         string        `yaml:"secret"`
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
	ConfirmTimeout time.Duration `yaml:"confirmTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	KeyFile        string        `yaml:"keyFile"`
}

// LoadConfig reads a YAML config from path. An empty path yields the zero
// Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
