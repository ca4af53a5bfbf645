// Package config loads training configuration from JSON files.
//
// Fields are pointer-typed so a partial config file only overrides what
// it names; everything else keeps its default. The same schema is
// accepted by the train CLI's --config flag.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldkinetics/actigraph/internal/forest"
)

// TrainConfig mirrors forest.Config with optional fields.
type TrainConfig struct {
	Trees            *int   `json:"trees,omitempty"`
	FeaturesPerSplit *int   `json:"features_per_split,omitempty"`
	MaxDepth         *int   `json:"max_depth,omitempty"`
	Workers          *int   `json:"workers,omitempty"`
	Seed             *int64 `json:"seed,omitempty"`
}

// maxFileSize bounds config reads; a training config is a few lines.
const maxFileSize = 1 * 1024 * 1024

// Load reads a TrainConfig from a JSON file. Omitted fields stay nil so
// partial configs are safe.
func Load(path string) (*TrainConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg TrainConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", cleanPath, err)
	}
	return &cfg, nil
}

// Apply overlays the set fields onto a forest.Config, starting from the
// forest defaults.
func (c *TrainConfig) Apply() forest.Config {
	out := forest.DefaultConfig()
	if c == nil {
		return out
	}
	if c.Trees != nil {
		out.Trees = *c.Trees
	}
	if c.FeaturesPerSplit != nil {
		out.FeaturesPerSplit = *c.FeaturesPerSplit
	}
	if c.MaxDepth != nil {
		out.MaxDepth = *c.MaxDepth
	}
	if c.Workers != nil {
		out.Workers = *c.Workers
	}
	if c.Seed != nil {
		out.Seed = *c.Seed
	}
	return out
}
