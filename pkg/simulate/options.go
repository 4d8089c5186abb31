package simulate

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/pipetrack/internal/config"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

// Options configures one simulated task run.
type Options struct {
	TaskID    task.ID
	Session   task.Session
	Task      task.Config
	Pipelines []config.PipelineConfig

	Workers            int
	DriverTime         time.Duration
	BlockedRatio       float64
	FailureRatio       float64
	OperatorsPerDriver int
	SampleInterval     time.Duration
	SpillPageSize      int64
	SpillEvery         int
	SpillDir           string
	Seed               int64

	// TracerProvider supplies the task tracer and the driver tracer.
	// Nil uses the global provider.
	TracerProvider trace.TracerProvider

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// FromConfig builds Options from loaded configuration.
func FromConfig(cfg *config.Config) Options {
	return Options{
		TaskID:  task.ID{QueryID: cfg.Task.QueryID},
		Session: task.Session{User: cfg.Task.User, Source: "pipetrack"},
		Task: task.Config{
			SpillLimit:      cfg.Task.SpillLimitBytes(),
			MemoryLimit:     cfg.Task.MemoryLimitBytes(),
			CPUTimerEnabled: cfg.Task.CPUTimer,
		},
		Pipelines:          cfg.Pipelines,
		Workers:            cfg.Simulation.Workers,
		DriverTime:         cfg.Simulation.DriverTime,
		BlockedRatio:       cfg.Simulation.BlockedRatio,
		FailureRatio:       cfg.Simulation.FailureRatio,
		OperatorsPerDriver: cfg.Simulation.OperatorsPerDriver,
		SampleInterval:     cfg.Simulation.SampleInterval,
		SpillPageSize:      cfg.Simulation.SpillPageBytes(),
		SpillEvery:         cfg.Simulation.SpillEvery,
		SpillDir:           cfg.Task.SpillDir,
		Seed:               cfg.Simulation.Seed,
	}
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return 1
	}

	return o.Workers
}
