// Package config loads the top-level application configuration: YAML file
// plus default application, environment-variable overrides, and struct
// validation, the same three-layer approach the teacher's config package
// applies to replication jobs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v4"

	"github.com/samestrin/diskbalancer/internal/rsyncexec"
)

// Config is the top-level application configuration.
type Config struct {
	DisksRoot  string `yaml:"disks_root" env:"REBALANCER_DISKS_ROOT" validate:"required" default:"/mnt"`
	DBPath     string `yaml:"db_path" env:"REBALANCER_DB_PATH" validate:"required" default:"/boot/config/plugins/rebalancer/metrics.db"`
	ConfigDir  string `yaml:"schedule_config_dir" env:"REBALANCER_SCHEDULE_DIR" validate:"required" default:"/boot/config/plugins/rebalancer/schedules"`
	LogLevel   string `yaml:"log_level" env:"REBALANCER_LOG_LEVEL" validate:"oneof=debug info warn error" default:"info"`
	LogFile    string `yaml:"log_file,omitempty" env:"REBALANCER_LOG_FILE"`

	Scan       ScanConfig       `yaml:"scan"`
	Plan       PlanConfig       `yaml:"plan"`
	Transfer   TransferConfig   `yaml:"transfer"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// ScanConfig controls the scanner (C2/C3).
type ScanConfig struct {
	UnitDepth      int      `yaml:"unit_depth" validate:"min=0" default:"1"`
	MinUnitBytes   int64    `yaml:"min_unit_bytes" validate:"min=0" default:"1048576"`
	ExcludeGlobs   []string `yaml:"exclude_globs,omitempty"`
	IncludeDisks   []string `yaml:"include_disks,omitempty"`
	ExcludeDisks   []string `yaml:"exclude_disks,omitempty"`
	IncludeShares  []string `yaml:"include_shares,omitempty"`
	ExcludeShares  []string `yaml:"exclude_shares,omitempty"`
}

// PlanConfig controls the planner (C5).
type PlanConfig struct {
	FixedTargetPercent bool    `yaml:"fixed_target_percent" default:"false"`
	TargetPercent      float64 `yaml:"target_percent" default:"80"`
	HeadroomPercent    float64 `yaml:"headroom_percent" default:"10"`
	StrategyByFill     bool    `yaml:"strategy_by_fill" default:"false"`
	SafetyMarginBytes  int64   `yaml:"safety_margin_bytes" validate:"min=0" default:"1073741824"`
}

// TransferConfig controls the executor and copy-tool invocation (C12).
type TransferConfig struct {
	Mode              string   `yaml:"mode" validate:"oneof=fast balanced integrity" default:"balanced"`
	ExtraFlags        []string `yaml:"extra_flags,omitempty"`
	Execute            bool     `yaml:"execute" default:"false"`
	AllowMerge        bool     `yaml:"allow_merge" default:"false"`
	AtomicMove        bool     `yaml:"atomic_move" default:"true"`
	BufferPercent     float64  `yaml:"buffer_percent" default:"5"`
	CheckSizeOnVerify bool     `yaml:"check_size_on_verify" default:"true"`
}

// RsyncMode parses Mode into an rsyncexec.Mode.
func (t TransferConfig) RsyncMode() rsyncexec.Mode {
	return rsyncexec.Mode(t.Mode)
}

// MonitorConfig controls the performance sampler (C9) and the live
// Prometheus exporter.
type MonitorConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval" default:"5s"`
	MetricsAddr    string        `yaml:"metrics_addr,omitempty" env:"REBALANCER_METRICS_ADDR" default:":9109"`
}

// RetentionConfig controls metrics-store retention (C7).
type RetentionConfig struct {
	OperationsDays     int `yaml:"operations_days" validate:"min=0" default:"90"`
	SystemMetricsDays  int `yaml:"system_metrics_days" validate:"min=0" default:"30"`
	ErrorsDays         int `yaml:"errors_days" validate:"min=0" default:"90"`
}

var validateStruct = validator.New()

// Load reads path, applies defaults, environment overrides, and
// validation, in that order.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: applying defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %q: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: applying environment overrides: %w", err)
	}

	if err := validateStruct.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}
