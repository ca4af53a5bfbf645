package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPartialConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{"trees": 250, "seed": 7}`))
	require.NoError(t, err)

	applied := cfg.Apply()
	assert.Equal(t, 250, applied.Trees)
	assert.Equal(t, int64(7), applied.Seed)
	// Unset fields keep the forest defaults.
	assert.Equal(t, 0, applied.MaxDepth)
	assert.Equal(t, 0, applied.FeaturesPerSplit)
}

func TestApplyNil(t *testing.T) {
	t.Parallel()

	var cfg *TrainConfig
	applied := cfg.Apply()
	assert.Equal(t, 1000, applied.Trees)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := Load("train.yaml")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"trees": `))
	assert.Error(t, err)
}
