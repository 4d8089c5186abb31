package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Task: config.TaskConfig{
			SpillLimit:  "1MiB",
			MemoryLimit: "256MiB",
		},
		Pipelines: []config.PipelineConfig{
			{ID: 0, Partitioned: true, Splits: 4, MinWeight: 1, MaxWeight: 10},
			{ID: 1, Drivers: 2},
		},
		Simulation: config.SimulationConfig{
			Workers:        2,
			BlockedRatio:   0.5,
			SpillPageSize:  "4KiB",
			SampleInterval: 1,
		},
		Observability: config.ObservabilityConfig{LogLevel: "debug"},
	}
}

func TestValidate_ValidConfig_NoError(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_ZeroConfig_NoError(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	require.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"spill_limit", func(c *config.Config) { c.Task.SpillLimit = "lots" }, config.ErrInvalidSpillLimit},
		{"memory_limit", func(c *config.Config) { c.Task.MemoryLimit = "-" }, config.ErrInvalidMemoryLimit},
		{"negative_id", func(c *config.Config) { c.Pipelines[0].ID = -1 }, config.ErrInvalidPipelineID},
		{"duplicate_id", func(c *config.Config) { c.Pipelines[1].ID = 0 }, config.ErrDuplicatePipeline},
		{"splits", func(c *config.Config) { c.Pipelines[0].Splits = -1 }, config.ErrInvalidSplits},
		{"drivers", func(c *config.Config) { c.Pipelines[1].Drivers = -1 }, config.ErrInvalidDrivers},
		{"weight_range", func(c *config.Config) { c.Pipelines[0].MinWeight = 20 }, config.ErrInvalidWeightRange},
		{"weight_unpartitioned", func(c *config.Config) { c.Pipelines[1].MaxWeight = 5 }, config.ErrWeightNotPartitioned},
		{"workers", func(c *config.Config) { c.Simulation.Workers = -1 }, config.ErrInvalidWorkers},
		{"driver_time", func(c *config.Config) { c.Simulation.DriverTime = -1 }, config.ErrInvalidDriverTime},
		{"blocked_ratio", func(c *config.Config) { c.Simulation.BlockedRatio = 1.5 }, config.ErrInvalidBlockedRatio},
		{"failure_ratio", func(c *config.Config) { c.Simulation.FailureRatio = -0.1 }, config.ErrInvalidFailureRatio},
		{"operators", func(c *config.Config) { c.Simulation.OperatorsPerDriver = -1 }, config.ErrInvalidOperators},
		{"sample_interval", func(c *config.Config) { c.Simulation.SampleInterval = -1 }, config.ErrInvalidSampleInterval},
		{"spill_every", func(c *config.Config) { c.Simulation.SpillEvery = -1 }, config.ErrInvalidSpillEvery},
		{"spill_page_size", func(c *config.Config) { c.Simulation.SpillPageSize = "x" }, config.ErrInvalidSpillPageSize},
		{"log_level", func(c *config.Config) { c.Observability.LogLevel = "loud" }, config.ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestSizeAccessors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()

	assert.EqualValues(t, 1<<20, cfg.Task.SpillLimitBytes())
	assert.EqualValues(t, 256<<20, cfg.Task.MemoryLimitBytes())
	assert.EqualValues(t, 4<<10, cfg.Simulation.SpillPageBytes())

	cfg.Task.SpillLimit = ""
	assert.Zero(t, cfg.Task.SpillLimitBytes())
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := config.ParseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := config.ParseLogLevel("trace")
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}
