package common

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvDatasetPath     = "DATASET_PATH"
	EnvArtifactPath    = "ARTIFACT_PATH"
	EnvValidationSplit = "VALIDATION_SPLIT"
	EnvSeed            = "SEED"
	EnvMaxEpochs       = "MAX_EPOCHS"
	EnvBatchSize       = "BATCH_SIZE"
	EnvPatience        = "PATIENCE"
	EnvLearningRate    = "LEARNING_RATE"
	EnvLRFactor        = "LR_FACTOR"
	EnvMinLR           = "MIN_LR"
	EnvDataPath        = "DATA_PATH"
	EnvModelsDir       = "MODELS_DIR"
	EnvMetricsPort     = "METRICS_PORT"
	EnvLogLevel        = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultDatasetPath     = "dataset.txt"
	DefaultArtifactPath    = "saved_model"
	DefaultValidationSplit = 0.2
	DefaultSeed            = 42
	DefaultMaxEpochs       = 100
	DefaultBatchSize       = 2
	DefaultPatience        = 15
	DefaultLearningRate    = 1e-3
	DefaultLRFactor        = 0.5
	DefaultMinLR           = 1e-6
	DefaultMetricsPort     = 0 // disabled
	DefaultLogLevel        = "info"
)

// Input geometry of the classifier: 45 features laid out as a 15x3 grid with one channel.
const (
	InputHeight   = 15
	InputWidth    = 3
	InputChannels = 1
	FeatureCount  = InputHeight * InputWidth * InputChannels
)

// Dataset text encoding
const (
	LabelSeparator   = "=>"
	FeatureSeparator = ","
)

// ONNX hand-off names used when logging the conversion hint.
const (
	InterchangeFile = "model.onnx"
)

// Validation constants
const (
	MaxEpochsLimit = 100000
	MinMetricsPort = 1024
	MaxMetricsPort = 65535
)
