package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(50*MB), cfg.DualLaneThreshold)
	assert.Equal(t, int64(49*MB), cfg.SplitPartSize)
	assert.Equal(t, 2500*time.Millisecond, cfg.ProgressInterval)
	assert.Equal(t, 5*time.Second, cfg.LegacyInterval)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "teraleech.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
download_dir: /data/dl
max_file_size_mb: 2048
segment_target_mb: 40
progress_interval: 3s
worker_concurrency: 4
`), 0644))
	t.Setenv("WORKER_CONCURRENCY", "6")
	t.Setenv("PRIMARY_API_URL", "https://api.example.com/resolve")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/dl", cfg.DownloadDir)
	assert.Equal(t, int64(2048*MB), cfg.MaxFileSize)
	assert.Equal(t, int64(40*MB), cfg.SegmentTarget)
	assert.Equal(t, 3*time.Second, cfg.ProgressInterval)
	assert.Equal(t, 6, cfg.WorkerConcurrency)
	assert.Equal(t, "https://api.example.com/resolve", cfg.PrimaryAPIURL)
	// untouched keys keep their defaults
	assert.Equal(t, int64(49*MB), cfg.SplitPartSize)
}

func TestLoadBadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MAX_FILE_SIZE_MB", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_FILE_SIZE_MB")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.SplitPartSize = cfg.UploadCeiling + 1
	cfg.SegmentMargin = cfg.SegmentTarget
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split part size")
	assert.Contains(t, err.Error(), "safety margin")
}

func TestRequire(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireBot())
	assert.Error(t, cfg.RequireResolver())
	cfg.BotToken = "123:abc"
	cfg.FolderAPIURL = "https://folder.example.com"
	assert.NoError(t, cfg.RequireBot())
	assert.NoError(t, cfg.RequireResolver())
}
