package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gmi-rain/internal/common"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath        string
	ModelsPath      string
	FiguresPath     string
	BaseURL         string
	TBFile          string
	PrecipFile      string
	TrainingSetFile string
	ModelFile       string
	ScalerFile      string
	LearningRate    float64
	Epochs          int
	BatchSize       int
	Seed            int64
	Shuffle         bool
	BBox            common.BBox
	TBColorRange    [2]float64
	RRColorRange    [2]float64
	CoastlineFile   string
	DPI             int
	DriftThreshold  float64
	LedgerPath      string
	MetricsTextfile string
	HTTPTimeout     time.Duration
}

type ConfigFile struct {
	Data struct {
		Path        string `yaml:"path"`
		BaseURL     string `yaml:"baseURL"`
		TBFile      string `yaml:"tbFile"`
		PrecipFile  string `yaml:"precipFile"`
		TrainingSet string `yaml:"trainingSet"`
		HTTPTimeout string `yaml:"httpTimeout"`
	} `yaml:"data"`

	Training struct {
		ModelsPath   string   `yaml:"modelsPath"`
		ModelFile    string   `yaml:"modelFile"`
		ScalerFile   string   `yaml:"scalerFile"`
		LearningRate float64  `yaml:"learningRate"`
		Epochs       int      `yaml:"epochs"`
		BatchSize    int      `yaml:"batchSize"`
		Seed         *int64   `yaml:"seed"`
		Shuffle      *bool    `yaml:"shuffle"`
		DriftLimit   *float64 `yaml:"driftThreshold"`
	} `yaml:"training"`

	Maps struct {
		FiguresPath   string       `yaml:"figuresPath"`
		BBox          *common.BBox `yaml:"bbox"`
		TBColorRange  []float64    `yaml:"tbColorRange"`
		RRColorRange  []float64    `yaml:"rrColorRange"`
		CoastlineFile string       `yaml:"coastlineFile"`
		DPI           int          `yaml:"dpi"`
	} `yaml:"maps"`

	System struct {
		LedgerPath      string `yaml:"ledgerPath"`
		MetricsTextfile string `yaml:"metricsTextfile"`
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
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	httpTimeout, err := time.ParseDuration(config.Data.HTTPTimeout)
	if err != nil {
		httpTimeout = 10 * time.Minute
	}

	bbox := common.IonianSea
	if config.Maps.BBox != nil {
		bbox = *config.Maps.BBox
	}

	seed := int64(common.DefaultSeed)
	if config.Training.Seed != nil {
		seed = *config.Training.Seed
	}
	shuffle := true
	if config.Training.Shuffle != nil {
		shuffle = *config.Training.Shuffle
	}
	drift := common.DefaultDriftThreshold
	if config.Training.DriftLimit != nil {
		drift = *config.Training.DriftLimit
	}

	tbRange, err := colorRange(config.Maps.TBColorRange, [2]float64{common.DefaultTBColorMin, common.DefaultTBColorMax})
	if err != nil {
		return Settings{}, fmt.Errorf("tbColorRange: %w", err)
	}
	rrRange, err := colorRange(config.Maps.RRColorRange, [2]float64{common.DefaultRRColorMin, common.DefaultRRColorMax})
	if err != nil {
		return Settings{}, fmt.Errorf("rrColorRange: %w", err)
	}

	dataPath := getEnvOrDefault(common.EnvDataPath, orDefault(config.Data.Path, common.DefaultDataPath))
	modelsPath := getEnvOrDefault(common.EnvModelsPath, orDefault(config.Training.ModelsPath, common.DefaultModelsPath))

	settings := Settings{
		DataPath:        dataPath,
		ModelsPath:      modelsPath,
		FiguresPath:     getEnvOrDefault(common.EnvFiguresPath, orDefault(config.Maps.FiguresPath, common.DefaultFiguresPath)),
		BaseURL:         getEnvOrDefault(common.EnvBaseURL, orDefault(config.Data.BaseURL, common.DefaultBaseURL)),
		TBFile:          getEnvOrDefault(common.EnvTBFile, orDefault(config.Data.TBFile, common.FileTB)),
		PrecipFile:      getEnvOrDefault(common.EnvPrecipFile, orDefault(config.Data.PrecipFile, common.FilePrecip)),
		TrainingSetFile: getEnvOrDefault(common.EnvTrainingSetFile, orDefault(config.Data.TrainingSet, common.FileTrainingSet)),
		ModelFile:       getEnvOrDefault(common.EnvModelFile, orDefault(config.Training.ModelFile, common.FileModel)),
		ScalerFile:      getEnvOrDefault(common.EnvScalerFile, orDefault(config.Training.ScalerFile, common.FileScaler)),
		LearningRate:    getFloatFromEnvOrConfig(common.EnvLearningRate, config.Training.LearningRate, common.DefaultLearningRate),
		Epochs:          getIntFromEnvOrConfig(common.EnvEpochs, config.Training.Epochs, common.DefaultEpochs),
		BatchSize:       getIntFromEnvOrConfig(common.EnvBatchSize, config.Training.BatchSize, common.DefaultBatchSize),
		Seed:            getInt64OrDefault(common.EnvSeed, seed),
		Shuffle:         getBoolOrDefault(common.EnvShuffle, shuffle),
		BBox: common.BBox{
			LatMin: getFloatOrDefault(common.EnvLatMin, bbox.LatMin),
			LatMax: getFloatOrDefault(common.EnvLatMax, bbox.LatMax),
			LonMin: getFloatOrDefault(common.EnvLonMin, bbox.LonMin),
			LonMax: getFloatOrDefault(common.EnvLonMax, bbox.LonMax),
		},
		TBColorRange:    tbRange,
		RRColorRange:    rrRange,
		CoastlineFile:   getEnvOrDefault(common.EnvCoastlineFile, config.Maps.CoastlineFile),
		DPI:             getIntFromEnvOrConfig(common.EnvDPI, config.Maps.DPI, common.DefaultDPI),
		DriftThreshold:  getFloatOrDefault(common.EnvDriftThreshold, drift),
		LedgerPath:      getEnvOrDefault(common.EnvLedgerPath, orDefault(config.System.LedgerPath, modelsPath)),
		MetricsTextfile: getEnvOrDefault(common.EnvMetricsTextfile, config.System.MetricsTextfile),
		HTTPTimeout:     getDurationOrDefault(common.EnvHTTPTimeout, httpTimeout),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	modelsPath := getEnvOrDefault(common.EnvModelsPath, common.DefaultModelsPath)

	settings := Settings{
		DataPath:        getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		ModelsPath:      modelsPath,
		FiguresPath:     getEnvOrDefault(common.EnvFiguresPath, common.DefaultFiguresPath),
		BaseURL:         getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		TBFile:          getEnvOrDefault(common.EnvTBFile, common.FileTB),
		PrecipFile:      getEnvOrDefault(common.EnvPrecipFile, common.FilePrecip),
		TrainingSetFile: getEnvOrDefault(common.EnvTrainingSetFile, common.FileTrainingSet),
		ModelFile:       getEnvOrDefault(common.EnvModelFile, common.FileModel),
		ScalerFile:      getEnvOrDefault(common.EnvScalerFile, common.FileScaler),
		LearningRate:    getFloatOrDefault(common.EnvLearningRate, common.DefaultLearningRate),
		Epochs:          getIntOrDefault(common.EnvEpochs, common.DefaultEpochs),
		BatchSize:       getIntOrDefault(common.EnvBatchSize, common.DefaultBatchSize),
		Seed:            getInt64OrDefault(common.EnvSeed, common.DefaultSeed),
		Shuffle:         getBoolOrDefault(common.EnvShuffle, true),
		BBox: common.BBox{
			LatMin: getFloatOrDefault(common.EnvLatMin, common.IonianSea.LatMin),
			LatMax: getFloatOrDefault(common.EnvLatMax, common.IonianSea.LatMax),
			LonMin: getFloatOrDefault(common.EnvLonMin, common.IonianSea.LonMin),
			LonMax: getFloatOrDefault(common.EnvLonMax, common.IonianSea.LonMax),
		},
		TBColorRange:    [2]float64{common.DefaultTBColorMin, common.DefaultTBColorMax},
		RRColorRange:    [2]float64{common.DefaultRRColorMin, common.DefaultRRColorMax},
		CoastlineFile:   os.Getenv(common.EnvCoastlineFile), // optional
		DPI:             getIntOrDefault(common.EnvDPI, common.DefaultDPI),
		DriftThreshold:  getFloatOrDefault(common.EnvDriftThreshold, common.DefaultDriftThreshold),
		LedgerPath:      getEnvOrDefault(common.EnvLedgerPath, modelsPath),
		MetricsTextfile: os.Getenv(common.EnvMetricsTextfile), // optional
		HTTPTimeout:     getDurationOrDefault(common.EnvHTTPTimeout, 10*time.Minute),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// DataFile resolves a file name against the data directory.
func (s *Settings) DataFile(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.DataPath, name)
}

// ModelPath is the location of the persisted network.
func (s *Settings) ModelPath() string {
	if filepath.IsAbs(s.ModelFile) {
		return s.ModelFile
	}
	return filepath.Join(s.ModelsPath, s.ModelFile)
}

// ScalerPath is the location of the persisted scaler state.
func (s *Settings) ScalerPath() string {
	if filepath.IsAbs(s.ScalerFile) {
		return s.ScalerFile
	}
	return filepath.Join(s.ModelsPath, s.ScalerFile)
}

// URLs lists the remote products the pipeline reads.
func (s *Settings) URLs() []string {
	return []string{
		s.BaseURL + "/" + s.TBFile,
		s.BaseURL + "/" + s.PrecipFile,
		s.BaseURL + "/" + s.TrainingSetFile,
	}
}

func colorRange(v []float64, def [2]float64) ([2]float64, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 2:
		return [2]float64{v[0], v[1]}, nil
	default:
		return def, fmt.Errorf("expected [min, max], got %d values", len(v))
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
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

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
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

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate paths
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ModelsPath == "" {
		return fmt.Errorf("models path cannot be empty")
	}
	if settings.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if settings.TBFile == "" || settings.PrecipFile == "" || settings.TrainingSetFile == "" {
		return fmt.Errorf("product file names cannot be empty")
	}
	if settings.ModelFile == "" || settings.ScalerFile == "" {
		return fmt.Errorf("model and scaler file names cannot be empty")
	}

	// Validate hyperparameters
	if settings.LearningRate <= 0 || settings.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", settings.LearningRate)
	}
	if settings.Epochs <= 0 || settings.Epochs > 1000000 {
		return fmt.Errorf("epochs must be between 1 and 1000000, got %d", settings.Epochs)
	}
	if settings.BatchSize <= 0 || settings.BatchSize > 10000000 {
		return fmt.Errorf("batch size must be between 1 and 10000000, got %d", settings.BatchSize)
	}

	// Validate map settings
	if !settings.BBox.Valid() {
		return fmt.Errorf("invalid bounding box: lat [%g, %g] lon [%g, %g]",
			settings.BBox.LatMin, settings.BBox.LatMax, settings.BBox.LonMin, settings.BBox.LonMax)
	}
	if settings.TBColorRange[0] >= settings.TBColorRange[1] {
		return fmt.Errorf("TB color range min must be below max, got %v", settings.TBColorRange)
	}
	if settings.RRColorRange[0] >= settings.RRColorRange[1] {
		return fmt.Errorf("rain rate color range min must be below max, got %v", settings.RRColorRange)
	}
	if settings.DPI < 50 || settings.DPI > 1200 {
		return fmt.Errorf("DPI must be between 50 and 1200, got %d", settings.DPI)
	}

	if settings.DriftThreshold <= 0 || settings.DriftThreshold > 10 {
		return fmt.Errorf("drift threshold must be between 0 and 10 standard deviations, got %f", settings.DriftThreshold)
	}
	if settings.HTTPTimeout < time.Second || settings.HTTPTimeout > 2*time.Hour {
		return fmt.Errorf("HTTP timeout must be between 1s and 2h, got %v", settings.HTTPTimeout)
	}

	return nil
}
