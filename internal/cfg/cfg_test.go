package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gmi-rain/internal/common"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.DataPath != common.DefaultDataPath {
					t.Errorf("expected default DataPath, got %s", settings.DataPath)
				}
				if settings.LearningRate != 0.001 {
					t.Errorf("expected default LearningRate 0.001, got %f", settings.LearningRate)
				}
				if settings.Epochs != 1600 {
					t.Errorf("expected default Epochs 1600, got %d", settings.Epochs)
				}
				if settings.BatchSize != 8000 {
					t.Errorf("expected default BatchSize 8000, got %d", settings.BatchSize)
				}
				if settings.BBox != common.IonianSea {
					t.Errorf("expected Ionian Sea bbox, got %+v", settings.BBox)
				}
				if !settings.Shuffle {
					t.Error("expected Shuffle to default to true")
				}
				if settings.DPI != 300 {
					t.Errorf("expected default DPI 300, got %d", settings.DPI)
				}
				if settings.LedgerPath != settings.ModelsPath {
					t.Errorf("expected ledger to default to models path, got %s", settings.LedgerPath)
				}
			},
		},
		{
			name: "custom hyperparameters and bbox",
			envVars: map[string]string{
				"LEARNING_RATE": "0.01",
				"EPOCHS":        "200",
				"BATCH_SIZE":    "64",
				"SEED":          "7",
				"SHUFFLE":       "false",
				"LAT_MIN":       "30",
				"LAT_MAX":       "45",
				"LON_MIN":       "-5",
				"LON_MAX":       "36",
				"HTTP_TIMEOUT":  "30s",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.LearningRate != 0.01 {
					t.Errorf("expected LearningRate 0.01, got %f", settings.LearningRate)
				}
				if settings.Epochs != 200 || settings.BatchSize != 64 {
					t.Errorf("expected 200 epochs of batch 64, got %d/%d", settings.Epochs, settings.BatchSize)
				}
				if settings.Seed != 7 {
					t.Errorf("expected Seed 7, got %d", settings.Seed)
				}
				if settings.Shuffle {
					t.Error("expected Shuffle to be false")
				}
				want := common.BBox{LatMin: 30, LatMax: 45, LonMin: -5, LonMax: 36}
				if settings.BBox != want {
					t.Errorf("expected bbox %+v, got %+v", want, settings.BBox)
				}
				if settings.HTTPTimeout != 30*time.Second {
					t.Errorf("expected HTTPTimeout 30s, got %v", settings.HTTPTimeout)
				}
			},
		},
		{
			name:    "zero epochs",
			envVars: map[string]string{"EPOCHS": "0"},
			wantErr: true,
		},
		{
			name:    "inverted bbox",
			envVars: map[string]string{"LAT_MIN": "40", "LAT_MAX": "34"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Errorf("loadFromEnv() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "full YAML",
			yamlContent: `
data:
  path: "/srv/gmi"
  httpTimeout: "2m"
training:
  modelsPath: "/srv/models"
  learningRate: 0.002
  epochs: 400
  batchSize: 256
  seed: 11
  shuffle: false
  driftThreshold: 1.5
maps:
  figuresPath: "/srv/figs"
  bbox:
    latMin: 35
    latMax: 39
    lonMin: 15
    lonMax: 21
  tbColorRange: [150, 290]
  dpi: 150
system:
  ledgerPath: "/srv/ledger"
  metricsTextfile: "/srv/gmi.prom"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.DataPath != "/srv/gmi" {
					t.Errorf("expected DataPath /srv/gmi, got %s", settings.DataPath)
				}
				if settings.HTTPTimeout != 2*time.Minute {
					t.Errorf("expected HTTPTimeout 2m, got %v", settings.HTTPTimeout)
				}
				if settings.LearningRate != 0.002 || settings.Epochs != 400 || settings.BatchSize != 256 {
					t.Errorf("unexpected hyperparameters: %f %d %d", settings.LearningRate, settings.Epochs, settings.BatchSize)
				}
				if settings.Seed != 11 || settings.Shuffle {
					t.Errorf("expected seed 11 without shuffle, got %d %v", settings.Seed, settings.Shuffle)
				}
				if settings.DriftThreshold != 1.5 {
					t.Errorf("expected DriftThreshold 1.5, got %f", settings.DriftThreshold)
				}
				if settings.BBox.LatMin != 35 || settings.BBox.LonMax != 21 {
					t.Errorf("unexpected bbox %+v", settings.BBox)
				}
				if settings.TBColorRange != [2]float64{150, 290} {
					t.Errorf("unexpected TB color range %v", settings.TBColorRange)
				}
				if settings.RRColorRange != [2]float64{common.DefaultRRColorMin, common.DefaultRRColorMax} {
					t.Errorf("expected default RR color range, got %v", settings.RRColorRange)
				}
				if settings.DPI != 150 {
					t.Errorf("expected DPI 150, got %d", settings.DPI)
				}
				if settings.MetricsTextfile != "/srv/gmi.prom" {
					t.Errorf("unexpected metrics textfile %s", settings.MetricsTextfile)
				}
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
training:
  epochs: 400
  batchSize: 256
`,
			envOverrides: map[string]string{
				"EPOCHS":    "10",
				"DATA_PATH": "/tmp/override",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Epochs != 10 {
					t.Errorf("expected env override Epochs 10, got %d", settings.Epochs)
				}
				if settings.BatchSize != 256 {
					t.Errorf("expected YAML BatchSize 256, got %d", settings.BatchSize)
				}
				if settings.DataPath != "/tmp/override" {
					t.Errorf("expected env override DataPath, got %s", settings.DataPath)
				}
			},
		},
		{
			name: "empty YAML uses defaults",
			yamlContent: `
data: {}
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Epochs != common.DefaultEpochs {
					t.Errorf("expected default epochs, got %d", settings.Epochs)
				}
				if settings.HTTPTimeout != 10*time.Minute {
					t.Errorf("expected default timeout, got %v", settings.HTTPTimeout)
				}
			},
		},
		{
			name: "bad color range",
			yamlContent: `
maps:
  rrColorRange: [0, 10, 20]
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: "training: [unclosed",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644)
			if err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			settings, err := loadFromYAML(configPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("loadFromYAML() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("uses CONFIG_FILE when set", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("training:\n  epochs: 3\n"), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		t.Setenv("CONFIG_FILE", configPath)

		settings, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if settings.Epochs != 3 {
			t.Errorf("expected Epochs 3 from file, got %d", settings.Epochs)
		}
	})

	t.Run("missing CONFIG_FILE is an error", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("falls back to env", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "")
		t.Setenv("BATCH_SIZE", "32")
		settings, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if settings.BatchSize != 32 {
			t.Errorf("expected BatchSize 32, got %d", settings.BatchSize)
		}
	})
}

func TestSettingsPaths(t *testing.T) {
	s := Settings{
		DataPath:        "data",
		ModelsPath:      "models",
		BaseURL:         "https://example.org/obs",
		TBFile:          "tb.HDF5",
		PrecipFile:      "rr.HDF5",
		TrainingSetFile: "set.nc",
		ModelFile:       "model.json.xz",
		ScalerFile:      "/abs/scaler.json",
	}

	if got := s.DataFile("tb.HDF5"); got != filepath.Join("data", "tb.HDF5") {
		t.Errorf("DataFile = %s", got)
	}
	if got := s.DataFile("/x/y.nc"); got != "/x/y.nc" {
		t.Errorf("absolute DataFile = %s", got)
	}
	if got := s.ModelPath(); got != filepath.Join("models", "model.json.xz") {
		t.Errorf("ModelPath = %s", got)
	}
	if got := s.ScalerPath(); got != "/abs/scaler.json" {
		t.Errorf("ScalerPath = %s", got)
	}

	urls := s.URLs()
	if len(urls) != 3 || urls[0] != "https://example.org/obs/tb.HDF5" || urls[2] != "https://example.org/obs/set.nc" {
		t.Errorf("unexpected URLs %v", urls)
	}
}
