package config

import "time"

// Task default values.
const (
	DefaultTaskQueryID     = "query"
	DefaultTaskUser        = "pipetrack"
	DefaultTaskSpillLimit  = "64MiB"
	DefaultTaskMemoryLimit = ""
	DefaultTaskCPUTimer    = true
	DefaultTaskSpillDir    = ""
)

// Simulation default values.
const (
	DefaultSimulationWorkers            = 4
	DefaultSimulationDriverTime         = 20 * time.Millisecond
	DefaultSimulationBlockedRatio       = 0.25
	DefaultSimulationFailureRatio       = 0.0
	DefaultSimulationOperatorsPerDriver = 3
	DefaultSimulationSampleInterval     = 10 * time.Millisecond
	DefaultSimulationSpillPageSize      = "64KiB"
	DefaultSimulationSpillEvery         = 8
	DefaultSimulationSeed               = 1
)

// Observability default values.
const (
	DefaultLogLevel        = "info"
	DefaultLogJSON         = false
	DefaultOTLPEndpoint    = ""
	DefaultOTLPInsecure    = false
	DefaultDiagnosticsAddr = "127.0.0.1:9464"
	DefaultServiceName     = "pipetrack"
)

// DefaultPipelines returns the pipelines simulated when none are configured:
// a partitioned source pipeline feeding a task-wide output pipeline.
func DefaultPipelines() []PipelineConfig {
	return []PipelineConfig{
		{ID: 0, Partitioned: true, Input: true, Splits: 32, MinWeight: 1, MaxWeight: 100},
		{ID: 1, Output: true, Drivers: 4},
	}
}
