package common

import "math"

// GMI channel layout. The first nine channels come from swath S1, the last
// four from swath S2; the training set and the network use this order.
const (
	ChannelCount   = 13
	S1ChannelCount = 9
	S2ChannelCount = 4
)

// ChannelNames lists the GMI channels by central frequency and polarization.
var ChannelNames = [ChannelCount]string{
	"TB 10.65 GHz (V)",
	"TB 10.65 GHz (H)",
	"TB 18.7 GHz (V)",
	"TB 18.7 GHz (H)",
	"TB 23.8 GHz (V)",
	"TB 36.5 GHz (V)",
	"TB 36.5 GHz (H)",
	"TB 89.0 GHz (V)",
	"TB 89.0 GHz (H)",
	"TB 166.5 GHz (V)",
	"TB 166.5 GHz (H)",
	"TB 183.31±3 GHz (V)",
	"TB 183.31±7 GHz (V)",
}

// Vertical and horizontal channel panels for the TB maps. -1 marks a panel
// with no channel (23.8 GHz is only measured in V).
var (
	VerticalPanels   = []int{0, 2, 4, 5, 7, 9}
	HorizontalPanels = []int{1, 3, -1, 6, 8, 10}
)

// Physical ranges and the product fill value.
const (
	MissingValue = -9999.9
	MinTB        = 0.0
	MaxTB        = 400.0
	MinRainRate  = 0.0
	MaxRainRate  = 3000.0
)

// Product file names and download location.
const (
	FileTB          = "1C-R.GPM.GMI.XCAL2016-C.20200916-S130832-E144106.037225.V07A.HDF5"
	FilePrecip      = "2A.GPM.GMI.GPROF2021v1.20200916-S130832-E144106.037225.V07A.HDF5"
	FileTrainingSet = "dataset2_GMI_DPR_RR.nc"
	FileModel       = "model_sea_ann.json"
	FileScaler      = "scaler_sea_ann.json"
	DefaultBaseURL  = "https://get.ecmwf.int/repository/mooc-machine-learning-weather-climate/tier_3/observations"
)

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvDataPath        = "DATA_PATH"
	EnvModelsPath      = "MODELS_PATH"
	EnvFiguresPath     = "FIGURES_PATH"
	EnvBaseURL         = "BASE_URL"
	EnvTBFile          = "TB_FILE"
	EnvPrecipFile      = "PRECIP_FILE"
	EnvTrainingSetFile = "TRAINING_SET_FILE"
	EnvModelFile       = "MODEL_FILE"
	EnvScalerFile      = "SCALER_FILE"
	EnvLearningRate    = "LEARNING_RATE"
	EnvEpochs          = "EPOCHS"
	EnvBatchSize       = "BATCH_SIZE"
	EnvSeed            = "SEED"
	EnvShuffle         = "SHUFFLE"
	EnvLatMin          = "LAT_MIN"
	EnvLatMax          = "LAT_MAX"
	EnvLonMin          = "LON_MIN"
	EnvLonMax          = "LON_MAX"
	EnvCoastlineFile   = "COASTLINE_FILE"
	EnvDPI             = "DPI"
	EnvDriftThreshold  = "DRIFT_THRESHOLD"
	EnvLedgerPath      = "LEDGER_PATH"
	EnvMetricsTextfile = "METRICS_TEXTFILE"
	EnvHTTPTimeout     = "HTTP_TIMEOUT"
)

// Configuration defaults
const (
	DefaultDataPath       = "data"
	DefaultModelsPath     = "models"
	DefaultFiguresPath    = "figures"
	DefaultLearningRate   = 0.001
	DefaultEpochs         = 1600
	DefaultBatchSize      = 8000
	DefaultSeed           = 42
	DefaultDPI            = 300
	DefaultDriftThreshold = 0.5 // standardized mean shift
	DefaultTBColorMin     = 130.0
	DefaultTBColorMax     = 300.0
	DefaultRRColorMin     = 0.0
	DefaultRRColorMax     = 40.0
)

// Ionian Sea on 2020-09-16, the Medicane track between Southern Italy and Greece.
var IonianSea = BBox{LatMin: 34, LatMax: 40, LonMin: 14, LonMax: 22}

// BBox is a latitude/longitude bounding box in degrees.
type BBox struct {
	LatMin float64 `yaml:"latMin" json:"lat_min"`
	LatMax float64 `yaml:"latMax" json:"lat_max"`
	LonMin float64 `yaml:"lonMin" json:"lon_min"`
	LonMax float64 `yaml:"lonMax" json:"lon_max"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// IsZero reports whether the box was left unset.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Valid reports whether the box has a positive extent inside the globe.
func (b BBox) Valid() bool {
	return b.LatMin < b.LatMax && b.LonMin < b.LonMax &&
		b.LatMin >= -90 && b.LatMax <= 90 && b.LonMin >= -180 && b.LonMax <= 180
}

// CleanFill converts the product fill value to NaN in place for quantities
// that cannot be negative (TB, rain rate): any value below zero is missing.
func CleanFill(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = math.NaN()
		}
	}
}

// CleanCoordFill converts fill values in a latitude or longitude grid to NaN.
// Coordinates are legitimately negative, so only values below -999 count.
func CleanCoordFill(v []float64) {
	for i, x := range v {
		if x < -999 {
			v[i] = math.NaN()
		}
	}
}
