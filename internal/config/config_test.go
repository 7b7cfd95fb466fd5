package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenFieldsOmitted(t *testing.T) {
	path := writeConfig(t, "disks_root: /mnt\ndb_path: /data/metrics.db\nschedule_config_dir: /data/schedules\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.Scan.UnitDepth)
	assert.Equal(t, "balanced", cfg.Transfer.Mode)
	assert.Equal(t, int64(1<<30), cfg.Plan.SafetyMarginBytes)
}

func TestLoadMissingFileStillAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("REBALANCER_DISKS_ROOT", "/mnt")
	t.Setenv("REBALANCER_DB_PATH", "/data/metrics.db")
	t.Setenv("REBALANCER_SCHEDULE_DIR", "/data/schedules")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/mnt", cfg.DisksRoot)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "disks_root: /mnt\ndb_path: /data/metrics.db\nschedule_config_dir: /data/schedules\nlog_level: verbose\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrideWinsOverYAML(t *testing.T) {
	path := writeConfig(t, "disks_root: /mnt\ndb_path: /data/metrics.db\nschedule_config_dir: /data/schedules\n")
	t.Setenv("REBALANCER_DISKS_ROOT", "/mnt2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt2", cfg.DisksRoot)
}

func TestRsyncModeParsesTransferMode(t *testing.T) {
	tc := TransferConfig{Mode: "integrity"}
	assert.Equal(t, "integrity", string(tc.RsyncMode()))
}
