package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BootstrapCollection describes one collection to create at startup, as
// read from an optional static config file. Env vars always win over this
// file for every other setting; this file exists purely to seed
// collections that should exist before any client connects.
type BootstrapCollection struct {
	Name       string `yaml:"name"`
	VectorDim  int    `yaml:"vector_dim"`
	Distance   string `yaml:"distance"`
	UseHNSW    bool   `yaml:"use_hnsw"`
	EnableBM25 bool   `yaml:"enable_bm25"`
}

// bootstrapFile is the top-level shape of vecdb.yaml.
type bootstrapFile struct {
	Collections []BootstrapCollection `yaml:"collections"`
}

// LoadBootstrapFile reads collection definitions from a YAML file. A
// missing file is not an error — it returns an empty slice, since the
// file is entirely optional.
func LoadBootstrapFile(path string) ([]BootstrapCollection, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read bootstrap file: %w", err)
	}

	var bf bootstrapFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("config: parse bootstrap file: %w", err)
	}
	return bf.Collections, nil
}
