package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "./dsx_export", cfg.ExportDirectory)
	assert.Equal(t, "./cache", cfg.CacheDirectory)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"OD"}, cfg.ERPImpact.ODSchemas)
	assert.Equal(t, []string{"FT"}, cfg.ERPImpact.FTSchemas)
	assert.EqualValues(t, 100*1024*1024, cfg.Analysis.ColumnScan.SampleThresholdBytes)
}

func TestLoadConfigHonorsExplicitEmptySchemas(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("erp_impact:\n  od_schemas: []\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{}, cfg.ERPImpact.ODSchemas)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("DSXIA_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	cfg := &Config{
		ExportDirectory: "x",
		CacheDirectory:  "y",
		Log:             LogConfig{Level: "nonsense", Format: "text"},
		Analysis: AnalysisConfig{ColumnScan: ColumnScanConfig{
			SampleThresholdBytes: 100,
			SkipThresholdBytes:   200,
			SampleBytes:          10,
		}},
	}

	err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsSkipThresholdBelowSampleThreshold(t *testing.T) {
	cfg := &Config{
		ExportDirectory: "x",
		CacheDirectory:  "y",
		Log:             LogConfig{Level: "info", Format: "text"},
		Analysis: AnalysisConfig{ColumnScan: ColumnScanConfig{
			SampleThresholdBytes: 1000,
			SkipThresholdBytes:   500,
			SampleBytes:          10,
		}},
	}

	err := Validate(cfg)
	require.Error(t, err)
}
