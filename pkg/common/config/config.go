// Package config loads typed configuration for the ETL engine using viper,
// following the defaults-then-file-then-env precedence the teacher's
// node configs use.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ErrorHandling controls how a pipeline reacts to stage and record failures.
type ErrorHandling struct {
	StopOnError bool `mapstructure:"stop_on_error"`
	MaxErrors   int  `mapstructure:"max_errors"`
}

// Defaults holds pipeline-wide defaults that stages may inherit.
type Defaults struct {
	BatchSize   int `mapstructure:"batch_size"`
	Parallelism int `mapstructure:"parallelism"`
}

// PipelineConfig is the per-pipeline configuration surface from spec.md §6.
type PipelineConfig struct {
	ErrorHandling ErrorHandling `mapstructure:"error_handling"`
	Defaults      Defaults      `mapstructure:"defaults"`
}

// DefaultPipelineConfig returns the zero-value-safe defaults used when a
// pipeline is built without an explicit configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ErrorHandling: ErrorHandling{StopOnError: true, MaxErrors: 0},
		Defaults:      Defaults{BatchSize: 100, Parallelism: 1},
	}
}

// EngineConfig is the engine-wide process configuration loaded by
// cmd/etlengine.
type EngineConfig struct {
	LogLevel      string        `mapstructure:"log_level"`
	MetricsPort   int           `mapstructure:"metrics_port"`
	APIEnabled    bool          `mapstructure:"api_enabled"`
	APIPort       int           `mapstructure:"api_port"`
	SchedulerTick time.Duration `mapstructure:"scheduler_tick"`
	ConfigFile    string        `mapstructure:"-"`
}

// LoadEngineConfig loads the engine configuration from defaults, file,
// and environment, in that order of increasing precedence, matching the
// teacher's LoadMasterConfig/LoadCoordinationConfig wiring style.
func LoadEngineConfig(cfgFile string) (*EngineConfig, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_port", 9400)
	v.SetDefault("api_enabled", true)
	v.SetDefault("api_port", 8080)
	v.SetDefault("scheduler_tick", "60s")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("etlengine")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/etlengine/")
		v.AddConfigPath("$HOME/.etlengine/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ETLENGINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &EngineConfig{
		LogLevel:      v.GetString("log_level"),
		MetricsPort:   v.GetInt("metrics_port"),
		APIEnabled:    v.GetBool("api_enabled"),
		APIPort:       v.GetInt("api_port"),
		SchedulerTick: v.GetDuration("scheduler_tick"),
		ConfigFile:    cfgFile,
	}

	return cfg, nil
}

// LoadPipelineConfig decodes a pipeline configuration section from a raw
// map (e.g. parsed from a pipeline definition file), rejecting unknown
// keys per spec.md §6's "unknown keys are rejected" rule.
func LoadPipelineConfig(raw map[string]interface{}) (*PipelineConfig, error) {
	v := viper.New()
	v.SetDefault("error_handling.stop_on_error", true)
	v.SetDefault("error_handling.max_errors", 0)
	v.SetDefault("defaults.batch_size", 100)
	v.SetDefault("defaults.parallelism", 1)

	if err := v.MergeConfigMap(raw); err != nil {
		return nil, fmt.Errorf("failed to merge pipeline config: %w", err)
	}

	cfg := &PipelineConfig{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	if cfg.ErrorHandling.MaxErrors < 0 {
		return nil, fmt.Errorf("error_handling.max_errors must be >= 0")
	}
	if cfg.Defaults.BatchSize <= 0 {
		cfg.Defaults.BatchSize = 100
	}
	if cfg.Defaults.Parallelism <= 0 {
		cfg.Defaults.Parallelism = 1
	}

	return cfg, nil
}
