package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Read returns the raw document at location, which is a file path or an
// http(s) URL. token is only used for URLs.
func Read(ctx context.Context, location, token string) ([]byte, error) {
	if IsRemote(location) {
		return fetch(ctx, location, token)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := Read(context.Background(), path, "")
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML config, expands ${VAR} references, fills defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ExpandEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates a YAML config without touching the environment, so a
// config can be linted on a machine that lacks its secrets.
func Check(data []byte) error {
	cfg, err := decode(data)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}

func decode(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
