// Package cfg loads the trainer settings from a YAML file and/or environment
// variables. Environment variables always win over file values.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"signal-trainer/internal/common"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DatasetPath     string
	ArtifactPath    string
	ValidationSplit float64
	Seed            uint64
	MaxEpochs       int
	BatchSize       int
	Patience        int
	LearningRate    float64
	LRFactor        float64
	MinLR           float64
	DataPath        string
	ModelsDir       string
	MetricsPort     int
	LogLevel        string
}

type ConfigFile struct {
	Dataset struct {
		Path            string  `yaml:"path"`
		ValidationSplit float64 `yaml:"validationSplit"`
		Seed            *uint64 `yaml:"seed"`
	} `yaml:"dataset"`

	Training struct {
		MaxEpochs    int     `yaml:"maxEpochs"`
		BatchSize    int     `yaml:"batchSize"`
		Patience     int     `yaml:"patience"`
		LearningRate float64 `yaml:"learningRate"`
		LRFactor     float64 `yaml:"lrFactor"`
		MinLR        float64 `yaml:"minLR"`
	} `yaml:"training"`

	Artifact struct {
		Path      string `yaml:"path"`
		ModelsDir string `yaml:"modelsDir"`
	} `yaml:"artifact"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: failed to read config file %s: %w", common.ErrIO, path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("%w: failed to parse config file: %w", common.ErrConfiguration, err)
	}

	seed := uint64(common.DefaultSeed)
	if config.Dataset.Seed != nil {
		seed = *config.Dataset.Seed
	}

	settings := Settings{
		DatasetPath:     getEnvOrDefault(common.EnvDatasetPath, orString(config.Dataset.Path, common.DefaultDatasetPath)),
		ArtifactPath:    getEnvOrDefault(common.EnvArtifactPath, orString(config.Artifact.Path, common.DefaultArtifactPath)),
		ValidationSplit: getFloatFromEnvOrConfig(common.EnvValidationSplit, config.Dataset.ValidationSplit, common.DefaultValidationSplit),
		Seed:            getUintOrDefault(common.EnvSeed, seed),
		MaxEpochs:       getIntFromEnvOrConfig(common.EnvMaxEpochs, config.Training.MaxEpochs, common.DefaultMaxEpochs),
		BatchSize:       getIntFromEnvOrConfig(common.EnvBatchSize, config.Training.BatchSize, common.DefaultBatchSize),
		Patience:        getIntFromEnvOrConfig(common.EnvPatience, config.Training.Patience, common.DefaultPatience),
		LearningRate:    getFloatFromEnvOrConfig(common.EnvLearningRate, config.Training.LearningRate, common.DefaultLearningRate),
		LRFactor:        getFloatFromEnvOrConfig(common.EnvLRFactor, config.Training.LRFactor, common.DefaultLRFactor),
		MinLR:           getFloatFromEnvOrConfig(common.EnvMinLR, config.Training.MinLR, common.DefaultMinLR),
		DataPath:        getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ModelsDir:       getEnvOrDefault(common.EnvModelsDir, config.Artifact.ModelsDir),
		MetricsPort:     getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, common.DefaultLogLevel)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("%w: validation failed: %w", common.ErrConfiguration, err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DatasetPath:     getEnvOrDefault(common.EnvDatasetPath, common.DefaultDatasetPath),
		ArtifactPath:    getEnvOrDefault(common.EnvArtifactPath, common.DefaultArtifactPath),
		ValidationSplit: getFloatOrDefault(common.EnvValidationSplit, common.DefaultValidationSplit),
		Seed:            getUintOrDefault(common.EnvSeed, common.DefaultSeed),
		MaxEpochs:       getIntOrDefault(common.EnvMaxEpochs, common.DefaultMaxEpochs),
		BatchSize:       getIntOrDefault(common.EnvBatchSize, common.DefaultBatchSize),
		Patience:        getIntOrDefault(common.EnvPatience, common.DefaultPatience),
		LearningRate:    getFloatOrDefault(common.EnvLearningRate, common.DefaultLearningRate),
		LRFactor:        getFloatOrDefault(common.EnvLRFactor, common.DefaultLRFactor),
		MinLR:           getFloatOrDefault(common.EnvMinLR, common.DefaultMinLR),
		DataPath:        os.Getenv(common.EnvDataPath),  // optional
		ModelsDir:       os.Getenv(common.EnvModelsDir), // optional
		MetricsPort:     getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("%w: validation failed: %w", common.ErrConfiguration, err)
	}

	return settings, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings checks every value against the ranges the trainer supports
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.DatasetPath) == "" {
		return fmt.Errorf("dataset path cannot be empty")
	}
	if strings.TrimSpace(settings.ArtifactPath) == "" {
		return fmt.Errorf("artifact path cannot be empty")
	}

	if settings.ValidationSplit <= 0 || settings.ValidationSplit >= 1 {
		return fmt.Errorf("validation split must be between 0 and 1 (exclusive), got %f", settings.ValidationSplit)
	}

	if settings.MaxEpochs < 1 || settings.MaxEpochs > common.MaxEpochsLimit {
		return fmt.Errorf("max epochs must be between 1 and %d, got %d", common.MaxEpochsLimit, settings.MaxEpochs)
	}
	if settings.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", settings.BatchSize)
	}
	if settings.Patience < 1 {
		return fmt.Errorf("patience must be at least 1, got %d", settings.Patience)
	}

	if settings.LearningRate <= 0 || settings.LearningRate > 1 {
		return fmt.Errorf("learning rate must be between 0 and 1, got %g", settings.LearningRate)
	}
	if settings.LRFactor <= 0 || settings.LRFactor >= 1 {
		return fmt.Errorf("learning rate factor must be between 0 and 1 (exclusive), got %f", settings.LRFactor)
	}
	if settings.MinLR <= 0 || settings.MinLR > settings.LearningRate {
		return fmt.Errorf("min learning rate must be positive and not above the learning rate, got %g", settings.MinLR)
	}

	if settings.MetricsPort != 0 && (settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort) {
		return fmt.Errorf("metrics port must be 0 (disabled) or between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}

	switch strings.ToLower(settings.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error, got %q", settings.LogLevel)
	}

	return nil
}
