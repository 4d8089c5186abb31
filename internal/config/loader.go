package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".pipetrack"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for pipetrack settings.
const envPrefix = "PIPETRACK"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	if len(cfg.Pipelines) == 0 {
		cfg.Pipelines = DefaultPipelines()
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	viperCfg := viper.New()
	applyDefaults(viperCfg)

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return &Config{Pipelines: DefaultPipelines()}
	}

	cfg.Pipelines = DefaultPipelines()

	return &cfg
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("task.query_id", DefaultTaskQueryID)
	viperCfg.SetDefault("task.user", DefaultTaskUser)
	viperCfg.SetDefault("task.spill_limit", DefaultTaskSpillLimit)
	viperCfg.SetDefault("task.memory_limit", DefaultTaskMemoryLimit)
	viperCfg.SetDefault("task.cpu_timer", DefaultTaskCPUTimer)
	viperCfg.SetDefault("task.spill_dir", DefaultTaskSpillDir)

	viperCfg.SetDefault("simulation.workers", DefaultSimulationWorkers)
	viperCfg.SetDefault("simulation.driver_time", DefaultSimulationDriverTime)
	viperCfg.SetDefault("simulation.blocked_ratio", DefaultSimulationBlockedRatio)
	viperCfg.SetDefault("simulation.failure_ratio", DefaultSimulationFailureRatio)
	viperCfg.SetDefault("simulation.operators_per_driver", DefaultSimulationOperatorsPerDriver)
	viperCfg.SetDefault("simulation.sample_interval", DefaultSimulationSampleInterval)
	viperCfg.SetDefault("simulation.spill_page_size", DefaultSimulationSpillPageSize)
	viperCfg.SetDefault("simulation.spill_every", DefaultSimulationSpillEvery)
	viperCfg.SetDefault("simulation.seed", DefaultSimulationSeed)

	viperCfg.SetDefault("observability.log_level", DefaultLogLevel)
	viperCfg.SetDefault("observability.log_json", DefaultLogJSON)
	viperCfg.SetDefault("observability.otlp_endpoint", DefaultOTLPEndpoint)
	viperCfg.SetDefault("observability.otlp_insecure", DefaultOTLPInsecure)
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.diagnostics_addr", DefaultDiagnosticsAddr)
	viperCfg.SetDefault("observability.service_name", DefaultServiceName)
	viperCfg.SetDefault("observability.environment", "")
}
