package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gmi-rain/internal/features"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ModelVersion represents a versioned model artifact
type ModelVersion struct {
	Version    string       `json:"version"`
	Path       string       `json:"path"`
	ScalerPath string       `json:"scaler_path"`
	RunID      string       `json:"run_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	Metrics    ModelMetrics `json:"metrics"`
	IsActive   bool         `json:"is_active"`
}

// ModelMetrics contains performance metrics for a model
type ModelMetrics struct {
	TestMSE         float64 `json:"test_mse"`
	TestMAE         float64 `json:"test_mae"`
	TrainMSE        float64 `json:"train_mse"`
	TrainMAE        float64 `json:"train_mae"`
	Epochs          int     `json:"epochs"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
}

// VersionStore persists serialized model versions keyed by version id.
// PutModelVersions writes the whole batch or nothing.
type VersionStore interface {
	PutModelVersion(version string, data []byte) error
	PutModelVersions(batch map[string][]byte) error
	ModelVersions() ([][]byte, error)
}

// ModelManager handles model versioning and rollback
type ModelManager struct {
	store        VersionStore
	clock        clockwork.Clock
	versions     []ModelVersion
	currentModel *ModelVersion
}

// NewModelManager creates a new model manager
func NewModelManager(store VersionStore, clock clockwork.Clock) (*ModelManager, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	mm := &ModelManager{
		store:    store,
		clock:    clock,
		versions: make([]ModelVersion, 0),
	}

	if err := mm.loadVersions(); err != nil {
		return nil, fmt.Errorf("failed to load model versions: %w", err)
	}
	return mm, nil
}

// AddVersion registers a new, inactive model version and returns it.
// Undefined metrics (NaN, e.g. an empty test subset) are stored as -1.
// The artifacts at modelPath and scalerPath must not be overwritten later;
// Publish takes care of that.
func (mm *ModelManager) AddVersion(modelPath, scalerPath, runID string, metrics ModelMetrics) (ModelVersion, error) {
	now := mm.clock.Now().UTC()
	return mm.addVersion(mm.nextID(now), now, modelPath, scalerPath, runID, metrics)
}

// Artifacts names where Publish writes a version: <Dir>/<version>/<ModelFile>
// and <Dir>/<version>/<ScalerFile>.
type Artifacts struct {
	Dir        string
	ModelFile  string
	ScalerFile string
}

// Publish saves model and scaler into a directory of their own and
// registers them as a new, inactive version.
func (mm *ModelManager) Publish(model *Model, scaler *features.Scaler, a Artifacts, runID string, metrics ModelMetrics) (ModelVersion, error) {
	if a.ModelFile == "" || a.ScalerFile == "" {
		return ModelVersion{}, fmt.Errorf("artifact file names are required")
	}
	now := mm.clock.Now().UTC()
	id := mm.nextID(now)
	dir := filepath.Join(a.Dir, id)
	if _, err := os.Stat(dir); err == nil {
		return ModelVersion{}, fmt.Errorf("version directory %s already exists", dir)
	}

	modelPath := filepath.Join(dir, filepath.Base(a.ModelFile))
	scalerPath := filepath.Join(dir, filepath.Base(a.ScalerFile))
	if err := model.Save(modelPath); err != nil {
		os.RemoveAll(dir)
		return ModelVersion{}, err
	}
	if err := scaler.Save(scalerPath); err != nil {
		os.RemoveAll(dir)
		return ModelVersion{}, err
	}

	v, err := mm.addVersion(id, now, modelPath, scalerPath, runID, metrics)
	if err != nil {
		os.RemoveAll(dir)
		return ModelVersion{}, err
	}
	return v, nil
}

func (mm *ModelManager) nextID(now time.Time) string {
	id := now.Format("20060102-150405")
	for n := 1; mm.find(id) >= 0; n++ {
		id = fmt.Sprintf("%s.%d", now.Format("20060102-150405"), n)
	}
	return id
}

func (mm *ModelManager) addVersion(id string, now time.Time, modelPath, scalerPath, runID string, metrics ModelMetrics) (ModelVersion, error) {
	for _, v := range []*float64{&metrics.TestMSE, &metrics.TestMAE, &metrics.TrainMSE, &metrics.TrainMAE} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = -1
		}
	}
	version := ModelVersion{
		Version:    id,
		Path:       modelPath,
		ScalerPath: scalerPath,
		RunID:      runID,
		CreatedAt:  now,
		Metrics:    metrics,
	}
	if err := mm.save(version); err != nil {
		return ModelVersion{}, err
	}
	mm.versions = append(mm.versions, version)
	mm.sortVersions()

	log.Info().Str("version", id).Str("path", modelPath).Float64("test_mse", metrics.TestMSE).Msg("Model version added")
	return version, nil
}

// ActivateVersion makes version the only active one. The flags change in a
// single store write; on error nothing changes.
func (mm *ModelManager) ActivateVersion(version string) error {
	if mm.find(version) < 0 {
		return fmt.Errorf("version %s not found", version)
	}

	batch := make(map[string][]byte)
	for _, v := range mm.versions {
		active := v.Version == version
		if v.IsActive == active {
			continue
		}
		v.IsActive = active
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal model version: %w", err)
		}
		batch[v.Version] = data
	}
	if len(batch) > 0 {
		if err := mm.store.PutModelVersions(batch); err != nil {
			return fmt.Errorf("activate model version %s: %w", version, err)
		}
	}

	for i := range mm.versions {
		mm.versions[i].IsActive = mm.versions[i].Version == version
	}
	mm.currentModel = &mm.versions[mm.find(version)]
	log.Info().Str("version", version).Msg("Model version activated")
	return nil
}

// Rollback activates the version created just before the active one.
func (mm *ModelManager) Rollback() error {
	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}

	// versions are sorted newest first
	if currentIdx+1 < len(mm.versions) {
		return mm.ActivateVersion(mm.versions[currentIdx+1].Version)
	}
	return fmt.Errorf("no previous version available")
}

// GetCurrentVersion returns the currently active version
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	return mm.currentModel
}

// ListVersions returns all model versions, newest first.
func (mm *ModelManager) ListVersions() []ModelVersion {
	out := make([]ModelVersion, len(mm.versions))
	copy(out, mm.versions)
	return out
}

// BestVersion returns the version with the lowest test MSE. Versions
// without a test score are ignored.
func (mm *ModelManager) BestVersion() (ModelVersion, bool) {
	var best ModelVersion
	found := false
	for _, v := range mm.versions {
		if v.Metrics.TestMSE < 0 {
			continue
		}
		if !found || v.Metrics.TestMSE < best.Metrics.TestMSE {
			best, found = v, true
		}
	}
	return best, found
}

func (mm *ModelManager) find(version string) int {
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			return i
		}
	}
	return -1
}

func (mm *ModelManager) sortVersions() {
	var active string
	if mm.currentModel != nil {
		active = mm.currentModel.Version
	}
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})
	mm.currentModel = nil
	if i := mm.find(active); active != "" && i >= 0 {
		mm.currentModel = &mm.versions[i]
	}
}

func (mm *ModelManager) loadVersions() error {
	raw, err := mm.store.ModelVersions()
	if err != nil {
		return err
	}

	for _, data := range raw {
		var v ModelVersion
		if err := json.Unmarshal(data, &v); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed model version")
			continue
		}
		mm.versions = append(mm.versions, v)
	}
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})

	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.currentModel = &mm.versions[i]
			break
		}
	}
	return nil
}

func (mm *ModelManager) save(v ModelVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal model version: %w", err)
	}
	if err := mm.store.PutModelVersion(v.Version, data); err != nil {
		return fmt.Errorf("store model version %s: %w", v.Version, err)
	}
	return nil
}
