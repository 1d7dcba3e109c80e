// Package config loads and validates the YAML configuration described in
// SPEC_FULL.md §10.2: LoadConfig reads an optional file, applies defaults,
// applies DSXIA_ environment overrides, then validates, mirroring the
// teacher's LoadConfig -> applyDefaults -> applyEnvironmentOverrides ->
// Validate pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dsxia/pkg/errors"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration object.
type Config struct {
	ExportDirectory string           `yaml:"export_directory"`
	CacheDirectory  string           `yaml:"cache_directory"`
	Log             LogConfig        `yaml:"log"`
	WorkerPool      WorkerPoolConfig `yaml:"worker_pool"`
	Index           IndexConfig      `yaml:"index"`
	ERPImpact       ERPImpactConfig  `yaml:"erp_impact"`
	Analysis        AnalysisConfig   `yaml:"analysis"`
	Watch           WatchConfig      `yaml:"watch"`
	HTTP            HTTPConfig       `yaml:"http"`

	// loadedSections records which top-level sections were present in the
	// YAML file, so applyDefaults can distinguish "absent" (fill in the
	// built-in default) from "present but empty" (leave as-is).
	loadedSections map[string]bool
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WorkerPoolConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueSize  int `yaml:"queue_size"`
}

type IndexConfig struct {
	Compress bool `yaml:"compress"`
}

type ERPImpactConfig struct {
	ODSchemas    []string `yaml:"od_schemas"`
	FTSchemas    []string `yaml:"ft_schemas"`
	ODPrefixes   []string `yaml:"od_prefixes"`
	FTPrefixes   []string `yaml:"ft_prefixes"`
	ERPTableFile string   `yaml:"erp_table_file"`
}

type AnalysisConfig struct {
	ColumnScan ColumnScanConfig `yaml:"column_scan"`
}

type ColumnScanConfig struct {
	SampleThresholdBytes int64 `yaml:"sample_threshold_bytes"`
	SkipThresholdBytes   int64 `yaml:"skip_threshold_bytes"`
	SampleBytes          int64 `yaml:"sample_bytes"`
}

type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

type HTTPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// LoadConfig reads configFile (if non-empty), applies defaults and
// environment overrides, validates the result, and returns it.
func LoadConfig(configFile string) (*Config, error) {
	config := &Config{loadedSections: map[string]bool{}}

	if configFile != "" {
		if err := loadConfigFile(configFile, config); err != nil {
			return nil, errors.InputMissing("config", "load_file", err.Error())
		}
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	markLoadedSections(config, string(data))
	return nil
}

// markLoadedSections records which top-level keys were present in the raw
// YAML, so an explicitly-empty list (e.g. "erp_impact.od_schemas: []") is
// honored rather than overwritten by applyDefaults.
func markLoadedSections(config *Config, raw string) {
	for _, key := range []string{"erp_impact", "worker_pool", "analysis"} {
		if strings.Contains(raw, key+":") {
			config.loadedSections[key] = true
		}
	}
}

func applyDefaults(config *Config) {
	if config.ExportDirectory == "" {
		config.ExportDirectory = "./dsx_export"
	}
	if config.CacheDirectory == "" {
		config.CacheDirectory = "./cache"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	// worker_pool: 0 means "runtime-computed", not "unset" -- no default fill.

	if !config.loadedSections["erp_impact"] {
		if config.ERPImpact.ODSchemas == nil {
			config.ERPImpact.ODSchemas = []string{"OD"}
		}
		if config.ERPImpact.FTSchemas == nil {
			config.ERPImpact.FTSchemas = []string{"FT"}
		}
		if config.ERPImpact.ODPrefixes == nil {
			config.ERPImpact.ODPrefixes = []string{"OD_"}
		}
		if config.ERPImpact.FTPrefixes == nil {
			config.ERPImpact.FTPrefixes = []string{"FT_"}
		}
	}

	if config.Analysis.ColumnScan.SampleThresholdBytes == 0 {
		config.Analysis.ColumnScan.SampleThresholdBytes = 100 * 1024 * 1024
	}
	if config.Analysis.ColumnScan.SkipThresholdBytes == 0 {
		config.Analysis.ColumnScan.SkipThresholdBytes = 500 * 1024 * 1024
	}
	if config.Analysis.ColumnScan.SampleBytes == 0 {
		config.Analysis.ColumnScan.SampleBytes = 10 * 1024 * 1024
	}

	if config.HTTP.ListenAddress == "" {
		config.HTTP.ListenAddress = ":9090"
	}
}

func applyEnvironmentOverrides(config *Config) {
	config.ExportDirectory = getEnvString("DSXIA_EXPORT_DIRECTORY", config.ExportDirectory)
	config.CacheDirectory = getEnvString("DSXIA_CACHE_DIRECTORY", config.CacheDirectory)

	config.Log.Level = getEnvString("DSXIA_LOG_LEVEL", config.Log.Level)
	config.Log.Format = getEnvString("DSXIA_LOG_FORMAT", config.Log.Format)

	config.WorkerPool.MaxWorkers = getEnvInt("DSXIA_WORKER_POOL_MAX_WORKERS", config.WorkerPool.MaxWorkers)
	config.WorkerPool.QueueSize = getEnvInt("DSXIA_WORKER_POOL_QUEUE_SIZE", config.WorkerPool.QueueSize)

	config.Index.Compress = getEnvBool("DSXIA_INDEX_COMPRESS", config.Index.Compress)

	config.ERPImpact.ERPTableFile = getEnvString("DSXIA_ERP_IMPACT_ERP_TABLE_FILE", config.ERPImpact.ERPTableFile)
	if v := getEnvStringSlice("DSXIA_ERP_IMPACT_OD_SCHEMAS", nil); v != nil {
		config.ERPImpact.ODSchemas = v
	}
	if v := getEnvStringSlice("DSXIA_ERP_IMPACT_FT_SCHEMAS", nil); v != nil {
		config.ERPImpact.FTSchemas = v
	}

	config.Watch.Enabled = getEnvBool("DSXIA_WATCH_ENABLED", config.Watch.Enabled)

	config.HTTP.Enabled = getEnvBool("DSXIA_HTTP_ENABLED", config.HTTP.Enabled)
	config.HTTP.ListenAddress = getEnvString("DSXIA_HTTP_LISTEN_ADDRESS", config.HTTP.ListenAddress)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Split(v, ",")
	}
	return defaultValue
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values.
func Validate(config *Config) error {
	v := &validator{config: config}
	v.run()

	if len(v.errs) == 0 {
		return nil
	}
	if len(v.errs) == 1 {
		return v.errs[0]
	}

	msgs := make([]string, len(v.errs))
	for i, e := range v.errs {
		msgs[i] = e.Error()
	}
	return errors.Internal("config", "validate", fmt.Sprintf("multiple validation errors: %s", strings.Join(msgs, "; ")))
}

type validator struct {
	config *Config
	errs   []error
}

func (v *validator) add(operation, message string) {
	v.errs = append(v.errs, errors.InputMissing("config", operation, message))
}

func (v *validator) run() {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLevels[v.config.Log.Level] {
		v.add("validate_log_level", fmt.Sprintf("invalid log level: %s", v.config.Log.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[v.config.Log.Format] {
		v.add("validate_log_format", fmt.Sprintf("invalid log format: %s", v.config.Log.Format))
	}

	if v.config.ExportDirectory == "" {
		v.add("validate_export_directory", "export_directory cannot be empty")
	}
	if v.config.CacheDirectory == "" {
		v.add("validate_cache_directory", "cache_directory cannot be empty")
	}

	if v.config.WorkerPool.MaxWorkers < 0 {
		v.add("validate_max_workers", "max_workers cannot be negative")
	}
	if v.config.WorkerPool.QueueSize < 0 {
		v.add("validate_queue_size", "queue_size cannot be negative")
	}

	cs := v.config.Analysis.ColumnScan
	if cs.SampleThresholdBytes <= 0 {
		v.add("validate_sample_threshold", "analysis.column_scan.sample_threshold_bytes must be positive")
	}
	if cs.SkipThresholdBytes <= cs.SampleThresholdBytes {
		v.add("validate_skip_threshold", "analysis.column_scan.skip_threshold_bytes must exceed sample_threshold_bytes")
	}
	if cs.SampleBytes <= 0 {
		v.add("validate_sample_bytes", "analysis.column_scan.sample_bytes must be positive")
	}

	if v.config.HTTP.Enabled && v.config.HTTP.ListenAddress == "" {
		v.add("validate_http_listen_address", "http.listen_address cannot be empty when http.enabled is true")
	}

	if v.config.ERPImpact.ERPTableFile != "" && !filepath.IsAbs(v.config.ERPImpact.ERPTableFile) {
		if _, err := os.Stat(v.config.ERPImpact.ERPTableFile); err != nil {
			v.add("validate_erp_table_file", fmt.Sprintf("erp_table_file not found: %s", v.config.ERPImpact.ERPTableFile))
		}
	}
}
