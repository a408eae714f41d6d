package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Pipeline.FrameSkip)
	assert.Equal(t, 1, cfg.Pipeline.WorkerCount)
	assert.Equal(t, 100, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, 0.6, cfg.Pipeline.DetectionConfidence)
	assert.Equal(t, 0.45, cfg.Pipeline.OCRConfidenceFloor)
	assert.Equal(t, 10, cfg.Pipeline.StreamFPS)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
pipeline:
  frame_skip: 3
  worker_count: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Pipeline.FrameSkip)
	assert.Equal(t, 4, cfg.Pipeline.WorkerCount)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Pipeline.QueueCapacity)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PLATESCANNER_PIPELINE_FRAME_SKIP", "7")
	t.Setenv("PLATESCANNER_SERVER_ADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.FrameSkip)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestEnvOverrideBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  frame_skip: 3
`), 0o644))
	t.Setenv("PLATESCANNER_PIPELINE_FRAME_SKIP", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.FrameSkip)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  frame_skip: 0
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
