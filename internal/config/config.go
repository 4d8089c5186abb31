// Package config loads and validates pipetrack settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/units"
)

// Config is the top-level configuration struct for pipetrack.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Task          TaskConfig          `mapstructure:"task"`
	Pipelines     []PipelineConfig    `mapstructure:"pipelines"`
	Simulation    SimulationConfig    `mapstructure:"simulation"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// TaskConfig holds settings of the owning task.
type TaskConfig struct {
	QueryID     string `mapstructure:"query_id"`
	User        string `mapstructure:"user"`
	SpillLimit  string `mapstructure:"spill_limit"`
	MemoryLimit string `mapstructure:"memory_limit"`
	CPUTimer    bool   `mapstructure:"cpu_timer"`
	SpillDir    string `mapstructure:"spill_dir"`
}

// PipelineConfig describes one simulated pipeline.
type PipelineConfig struct {
	ID          int   `mapstructure:"id"`
	Partitioned bool  `mapstructure:"partitioned"`
	Input       bool  `mapstructure:"input"`
	Output      bool  `mapstructure:"output"`
	Splits      int   `mapstructure:"splits"`
	Drivers     int   `mapstructure:"drivers"`
	MinWeight   int64 `mapstructure:"min_weight"`
	MaxWeight   int64 `mapstructure:"max_weight"`
}

// SimulationConfig holds workload generator knobs.
type SimulationConfig struct {
	Workers            int           `mapstructure:"workers"`
	DriverTime         time.Duration `mapstructure:"driver_time"`
	BlockedRatio       float64       `mapstructure:"blocked_ratio"`
	FailureRatio       float64       `mapstructure:"failure_ratio"`
	OperatorsPerDriver int           `mapstructure:"operators_per_driver"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"`
	SpillPageSize      string        `mapstructure:"spill_page_size"`
	SpillEvery         int           `mapstructure:"spill_every"`
	Seed               int64         `mapstructure:"seed"`
}

// ObservabilityConfig holds logging and telemetry settings.
type ObservabilityConfig struct {
	LogLevel        string `mapstructure:"log_level"`
	LogJSON         bool   `mapstructure:"log_json"`
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool   `mapstructure:"otlp_insecure"`
	OTLPHeaders     string `mapstructure:"otlp_headers"`
	DiagnosticsAddr string `mapstructure:"diagnostics_addr"`
	ServiceName     string `mapstructure:"service_name"`
	Environment     string `mapstructure:"environment"`
}

// ratioMax is the upper bound for probability settings.
const ratioMax = 1.0

// Sentinel errors for configuration validation.
var (
	// ErrInvalidSpillLimit indicates the spill limit is not a valid size.
	ErrInvalidSpillLimit = errors.New("task.spill_limit must be a valid size")
	// ErrInvalidMemoryLimit indicates the memory limit is not a valid size.
	ErrInvalidMemoryLimit = errors.New("task.memory_limit must be a valid size")
	// ErrDuplicatePipeline indicates two pipelines share an id.
	ErrDuplicatePipeline = errors.New("pipelines[].id must be unique")
	// ErrInvalidPipelineID indicates a negative pipeline id.
	ErrInvalidPipelineID = errors.New("pipelines[].id must be non-negative")
	// ErrInvalidSplits indicates a negative split count.
	ErrInvalidSplits = errors.New("pipelines[].splits must be non-negative")
	// ErrInvalidDrivers indicates a negative task-wide driver count.
	ErrInvalidDrivers = errors.New("pipelines[].drivers must be non-negative")
	// ErrInvalidWeightRange indicates min_weight > max_weight or a negative bound.
	ErrInvalidWeightRange = errors.New("pipelines[] weight range must satisfy 0 <= min_weight <= max_weight")
	// ErrWeightNotPartitioned indicates weights on a non-partitioned pipeline.
	ErrWeightNotPartitioned = errors.New("pipelines[] weights require partitioned: true")
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("simulation.workers must be non-negative")
	// ErrInvalidDriverTime indicates a negative driver time.
	ErrInvalidDriverTime = errors.New("simulation.driver_time must be non-negative")
	// ErrInvalidBlockedRatio indicates the blocked ratio is out of range.
	ErrInvalidBlockedRatio = errors.New("simulation.blocked_ratio must be between 0 and 1")
	// ErrInvalidFailureRatio indicates the failure ratio is out of range.
	ErrInvalidFailureRatio = errors.New("simulation.failure_ratio must be between 0 and 1")
	// ErrInvalidOperators indicates a negative operator count.
	ErrInvalidOperators = errors.New("simulation.operators_per_driver must be non-negative")
	// ErrInvalidSampleInterval indicates a negative sample interval.
	ErrInvalidSampleInterval = errors.New("simulation.sample_interval must be non-negative")
	// ErrInvalidSpillPageSize indicates the spill page size is not a valid size.
	ErrInvalidSpillPageSize = errors.New("simulation.spill_page_size must be a valid size")
	// ErrInvalidSpillEvery indicates a negative spill period.
	ErrInvalidSpillEvery = errors.New("simulation.spill_every must be non-negative")
	// ErrInvalidLogLevel indicates an unknown log level name.
	ErrInvalidLogLevel = errors.New("observability.log_level must be debug, info, warn or error")
)

// Validate checks all configuration values for correctness.
// Returns the first validation error found, or nil if valid.
func (c *Config) Validate() error {
	_, err := units.ParseSize(c.Task.SpillLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpillLimit, err)
	}

	_, err = units.ParseSize(c.Task.MemoryLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMemoryLimit, err)
	}

	err = validatePipelines(c.Pipelines)
	if err != nil {
		return err
	}

	err = c.Simulation.validate()
	if err != nil {
		return err
	}

	_, err = ParseLogLevel(c.Observability.LogLevel)

	return err
}

func validatePipelines(pipelines []PipelineConfig) error {
	seen := make(map[int]bool, len(pipelines))

	for _, p := range pipelines {
		switch {
		case p.ID < 0:
			return fmt.Errorf("%w: %d", ErrInvalidPipelineID, p.ID)
		case seen[p.ID]:
			return fmt.Errorf("%w: %d", ErrDuplicatePipeline, p.ID)
		case p.Splits < 0:
			return fmt.Errorf("pipeline %d: %w", p.ID, ErrInvalidSplits)
		case p.Drivers < 0:
			return fmt.Errorf("pipeline %d: %w", p.ID, ErrInvalidDrivers)
		case p.MinWeight < 0 || p.MinWeight > p.MaxWeight:
			return fmt.Errorf("pipeline %d: %w", p.ID, ErrInvalidWeightRange)
		case !p.Partitioned && p.MaxWeight > 0:
			return fmt.Errorf("pipeline %d: %w", p.ID, ErrWeightNotPartitioned)
		}

		seen[p.ID] = true
	}

	return nil
}

func (s SimulationConfig) validate() error {
	if s.Workers < 0 {
		return ErrInvalidWorkers
	}

	if s.DriverTime < 0 {
		return ErrInvalidDriverTime
	}

	if s.BlockedRatio < 0 || s.BlockedRatio > ratioMax {
		return ErrInvalidBlockedRatio
	}

	if s.FailureRatio < 0 || s.FailureRatio > ratioMax {
		return ErrInvalidFailureRatio
	}

	if s.OperatorsPerDriver < 0 {
		return ErrInvalidOperators
	}

	if s.SampleInterval < 0 {
		return ErrInvalidSampleInterval
	}

	if s.SpillEvery < 0 {
		return ErrInvalidSpillEvery
	}

	_, err := units.ParseSize(s.SpillPageSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpillPageSize, err)
	}

	return nil
}

// SpillLimitBytes returns the parsed task spill limit. Zero means unlimited.
func (t TaskConfig) SpillLimitBytes() int64 {
	return sizeOrZero(t.SpillLimit)
}

// MemoryLimitBytes returns the parsed task memory limit. Zero means unlimited.
func (t TaskConfig) MemoryLimitBytes() int64 {
	return sizeOrZero(t.MemoryLimit)
}

// SpillPageBytes returns the parsed spill page size.
func (s SimulationConfig) SpillPageBytes() int64 {
	return sizeOrZero(s.SpillPageSize)
}

// sizeOrZero parses a size that Validate already accepted.
func sizeOrZero(raw string) int64 {
	n, err := units.ParseSize(raw)
	if err != nil {
		return 0
	}

	return n
}

// ParseLogLevel maps a level name to its slog level. Empty means info.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
}
