package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and decodes the YAML config at path, rejects unknown fields,
// validates it, and returns the resulting V. Takes an explicit path rather
// than resolving a package-level singleton, since hometree's config is
// scoped per invocation rather than process-global.
func Load(path string) (V, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return V{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses raw YAML bytes into a validated V, rejecting unknown
// top-level and nested fields via yaml.Decoder's strict mode.
func Decode(data []byte) (V, error) {
	v := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&v); err != nil {
		return V{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(&v); err != nil {
		return V{}, err
	}
	return v, nil
}

// Encode serializes v back to YAML, for writing defaults on first run.
func Encode(v V) ([]byte, error) {
	return yaml.Marshal(v)
}

// WriteDefault writes a fresh default config to path, creating parent
// directories as needed.
func WriteDefault(path string) error {
	data, err := Encode(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
